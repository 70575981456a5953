package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licbind/internal/account"
	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

func testAsset(id uint64) domain.AssetRef {
	return domain.NewAssetRef(chain.MustParseAddress("0x00000000000000000000000000000000000000aa"), id, 1)
}

func createCall(addr chain.Address, asset domain.AssetRef) account.Call {
	data := append(append([]byte{}, addr[:]...), asset.Encode()...)
	return account.Call{Target: chain.MustParseAddress("0x0000000000000000000000000000000000000101"), Method: "createAccount", Data: data}
}

func initCall(addr, executor chain.Address) account.Call {
	return account.Call{Target: addr, Method: "initialize", Data: executor[:]}
}

func TestOwnership(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	_, err := l.OwnerOf(ctx, testAsset(1))
	assert.Error(t, err, "unknown asset has no owner")

	owner := chain.MustParseAddress("0x00000000000000000000000000000000000000bb")
	l.SetOwner(testAsset(1), owner)

	got, err := l.OwnerOf(ctx, testAsset(1))
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestExecuteBatchAtomicity(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	addr := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")
	executor := chain.MustParseAddress("0x0000000000000000000000000000000000000104")

	// A batch whose second call fails must leave no trace of the first.
	err := l.ExecuteBatch(ctx, []account.Call{
		createCall(addr, testAsset(1)),
		{Target: addr, Method: "bogus"},
	})
	require.Error(t, err)

	exists, err := l.Exists(ctx, addr)
	require.NoError(t, err)
	assert.False(t, exists)

	// Re-running the full batch succeeds from a clean slate.
	err = l.ExecuteBatch(ctx, []account.Call{
		createCall(addr, testAsset(1)),
		initCall(addr, executor),
	})
	require.NoError(t, err)

	exists, err = l.Exists(ctx, addr)
	require.NoError(t, err)
	assert.True(t, exists)

	asset, ok := l.AccountAsset(addr)
	require.True(t, ok)
	assert.True(t, asset.Equal(testAsset(1)))
}

func TestExistsRequiresInitialization(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	addr := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")

	require.NoError(t, l.ExecuteBatch(ctx, []account.Call{createCall(addr, testAsset(1))}))

	exists, err := l.Exists(ctx, addr)
	require.NoError(t, err)
	assert.False(t, exists, "created but uninitialized account is not deployed")
}

func TestDuplicateCreateFails(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	addr := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")
	executor := chain.MustParseAddress("0x0000000000000000000000000000000000000104")

	require.NoError(t, l.ExecuteBatch(ctx, []account.Call{
		createCall(addr, testAsset(1)),
		initCall(addr, executor),
	}))

	err := l.ExecuteBatch(ctx, []account.Call{createCall(addr, testAsset(1))})
	assert.Error(t, err)
}

func TestIsValidSignature(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	ownerKey, err := l.CreateKeypair()
	require.NoError(t, err)
	strangerKey, err := l.CreateKeypair()
	require.NoError(t, err)

	addr := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")
	executor := chain.MustParseAddress("0x0000000000000000000000000000000000000104")
	l.SetOwner(testAsset(1), ownerKey.Address)
	require.NoError(t, l.ExecuteBatch(ctx, []account.Call{
		createCall(addr, testAsset(1)),
		initCall(addr, executor),
	}))

	digest := chain.Keccak256([]byte("digest"))

	// Owner's signature is accepted with the magic value.
	magic, err := l.IsValidSignature(ctx, addr, digest, ownerKey.Sign(digest))
	require.NoError(t, err)
	assert.Equal(t, account.MagicValue, magic)

	// A stranger's signature is answered, but rejected.
	magic, err = l.IsValidSignature(ctx, addr, digest, strangerKey.Sign(digest))
	require.NoError(t, err)
	assert.NotEqual(t, account.MagicValue, magic)

	// Signature over a different digest is rejected.
	other := chain.Keccak256([]byte("other"))
	magic, err = l.IsValidSignature(ctx, addr, digest, ownerKey.Sign(other))
	require.NoError(t, err)
	assert.NotEqual(t, account.MagicValue, magic)

	// An undeployed account errors, which the binding engine treats as
	// rejection.
	_, err = l.IsValidSignature(ctx, chain.MustParseAddress("0x00000000000000000000000000000000000000dd"), digest, ownerKey.Sign(digest))
	assert.Error(t, err)
}

func TestSignatureFollowsOwnershipTransfer(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	first, err := l.CreateKeypair()
	require.NoError(t, err)
	second, err := l.CreateKeypair()
	require.NoError(t, err)

	addr := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")
	executor := chain.MustParseAddress("0x0000000000000000000000000000000000000104")
	l.SetOwner(testAsset(1), first.Address)
	require.NoError(t, l.ExecuteBatch(ctx, []account.Call{
		createCall(addr, testAsset(1)),
		initCall(addr, executor),
	}))

	digest := chain.Keccak256([]byte("digest"))

	// After a transfer the account answers for the new owner only.
	l.SetOwner(testAsset(1), second.Address)

	magic, err := l.IsValidSignature(ctx, addr, digest, first.Sign(digest))
	require.NoError(t, err)
	assert.NotEqual(t, account.MagicValue, magic)

	magic, err = l.IsValidSignature(ctx, addr, digest, second.Sign(digest))
	require.NoError(t, err)
	assert.Equal(t, account.MagicValue, magic)
}

func TestBinderEndToEndAgainstLedger(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	params := account.Params{
		Registry:       chain.MustParseAddress("0x0000000000000000000000000000000000000101"),
		ProxyTemplate:  chain.MustParseAddress("0x0000000000000000000000000000000000000102"),
		Implementation: chain.MustParseAddress("0x0000000000000000000000000000000000000103"),
		Executor:       chain.MustParseAddress("0x0000000000000000000000000000000000000104"),
		Salt:           "licbind.account.v1",
		ChainID:        1,
	}
	binder, err := account.NewBinder(params, l, l, l, l)
	require.NoError(t, err)

	owner, err := l.CreateKeypair()
	require.NoError(t, err)
	l.SetOwner(testAsset(7), owner.Address)

	addr, err := binder.Create(ctx, testAsset(7), owner.Address)
	require.NoError(t, err)
	assert.Equal(t, binder.DeriveAddress(testAsset(7)), addr)

	payload := chain.Keccak256([]byte("accept license terms"))
	sig := owner.Sign(binder.SigningDigest(testAsset(7), payload))

	ok, err := binder.VerifySignature(ctx, testAsset(7), payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// The same signature against another asset's digest fails.
	ok, err = binder.VerifySignature(ctx, testAsset(8), payload, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}
