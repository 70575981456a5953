package issuance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/internal/registry"
	"licbind/pkg/contracts/domain"
)

// installAllowlist builds a tree over the assets and installs its root.
func installAllowlist(t *testing.T, e *env, s *AllowlistStrategy, assets ...domain.AssetRef) *MerkleTree {
	t.Helper()
	ls := make([]chain.Hash, len(assets))
	for i, a := range assets {
		ls[i] = LeafHash(a)
	}
	tree := NewMerkleTree(ls)
	require.NoError(t, s.SetRoot(context.Background(), tree.Root()))
	return tree
}

func TestAllowlistMintHappyPath(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, s, asset, e.asset(8))

	terms := standardTerms()
	token, err := s.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), token.TokenID)
	assert.Equal(t, e.binder.DeriveAddress(asset), token.Owner, "minted to the bound account")
	assert.Equal(t, domain.ScopeAllowlist, token.Scope)

	// Asset id 7 lands in word 0, bit 7 of the shared bitmap.
	key, bit := registry.MintSlot(asset)
	assert.Equal(t, chain.Uint64Word(0), [32]byte(key.Word))
	assert.Equal(t, uint8(7), bit)
	set, err := e.store.GetBit(ctx, key, bit)
	require.NoError(t, err)
	assert.True(t, set)

	// Terms carry the authoritative licensee.
	recorded, err := e.registry.GetTerms(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, token.Owner, recorded.Licensee)
}

func TestAllowlistMintDuplicate(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, s, asset)

	terms := standardTerms()
	_, err := s.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)

	_, err = s.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMinted)

	supply, err := e.registry.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), supply)
}

func TestAllowlistMintInvalidProof(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	listed := e.ownedAsset(7)
	outsider := e.ownedAsset(9)
	tree := installAllowlist(t, e, s, listed)

	terms := standardTerms()
	_, err := s.Mint(ctx, outsider, tree.Proof(0), e.acceptanceSig(outsider, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidProof)

	// The failed attempt consumed nothing.
	key, bit := registry.MintSlot(outsider)
	set, err := e.store.GetBit(ctx, key, bit)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestAllowlistMintWithoutRoot(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)

	asset := e.ownedAsset(7)
	terms := standardTerms()
	_, err := s.Mint(context.Background(), asset, nil, e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidProof, "no root installed means nothing is a member")
}

func TestSetRootRejectsZero(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	err := s.SetRoot(context.Background(), chain.ZeroHash)
	assert.ErrorIs(t, err, apperrors.ErrZeroRoot)
}

func TestRootReplacementInvalidatesOldProofs(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	oldTree := installAllowlist(t, e, s, asset)

	// Replace the root with a list that no longer contains the asset.
	installAllowlist(t, e, s, e.asset(100), e.asset(101))

	terms := standardTerms()
	_, err := s.Mint(ctx, asset, oldTree.Proof(0), e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidProof)
}

func TestAllowlistBadSignatureReleasesSlot(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, s, asset)
	terms := standardTerms()

	_, err := s.Mint(ctx, asset, tree.Proof(0), []byte("garbage"), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	// The slot was released: a retry with a valid signature succeeds.
	token, err := s.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), token.TokenID)
}

func TestAllowlistBadSignatureKeepsAccountOnly(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, s, asset)
	terms := standardTerms()

	_, err := s.Mint(ctx, asset, tree.Proof(0), []byte("garbage"), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	// The account created for the verification attempt stays deployed.
	deployed, err := e.binder.IsDeployed(ctx, asset)
	require.NoError(t, err)
	assert.True(t, deployed)

	// Registry state carries nothing from the attempt: no token, no set bit.
	supply, err := e.registry.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), supply)

	key, bit := registry.MintSlot(asset)
	set, err := e.store.GetBit(ctx, key, bit)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestAllowlistSignatureBoundToTerms(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, s, asset)

	// Signature over one set of terms does not authorize different terms.
	signed := standardTerms()
	submitted := standardTerms()
	submitted.Commercial = false

	_, err := s.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, signed), submitted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)
}

func TestAllowlistAcceptsCrossChainAssets(t *testing.T) {
	e := newEnv(t)
	s := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	// An asset on a foreign chain is mintable through the allowlist; the
	// proof and the signature carry the eligibility, not the oracle.
	foreign := domain.NewAssetRef(collectionAddr, 7, 137)
	e.ledger.SetOwner(foreign, e.owner.Address)
	tree := installAllowlist(t, e, s, foreign)

	terms := standardTerms()
	token, err := s.Mint(ctx, foreign, tree.Proof(0), e.acceptanceSig(foreign, terms), terms)
	require.NoError(t, err)
	assert.True(t, token.Asset.Equal(foreign))
}
