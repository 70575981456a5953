package issuance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/internal/registry"
	"licbind/pkg/contracts/domain"
)

func newOpenStrategy(e *env) *OpenStrategy {
	return NewOpenStrategy(e.store, e.registry, e.binder, e.ledger, nil, nil)
}

func TestOpenMintRequiresToggle(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	asset := e.ownedAsset(7)
	terms := standardTerms()
	_, err := s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrNotEnabled)

	enabled, err := s.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestOpenMintHappyPath(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	terms := standardTerms()
	token, err := s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), token.TokenID)
	assert.Equal(t, e.binder.DeriveAddress(asset), token.Owner)
	assert.Equal(t, domain.ScopeOpen, token.Scope)

	// The bound account was deployed along the way.
	deployed, err := e.binder.IsDeployed(ctx, asset)
	require.NoError(t, err)
	assert.True(t, deployed)
}

func TestOpenMintRejectsNonOwner(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	terms := standardTerms()
	stranger := chain.MustParseAddress("0x00000000000000000000000000000000000000cc")

	// A valid owner signature does not help a caller who is not the owner.
	_, err := s.Mint(ctx, asset, stranger, e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	// An asset with no ownership record is an oracle failure, not a
	// rejected owner.
	orphan := e.asset(8)
	_, err = s.Mint(ctx, orphan, e.owner.Address, e.acceptanceSig(orphan, terms), terms)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotOwner)
}

func TestOpenMintRejectsForeignChain(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	foreign := domain.NewAssetRef(collectionAddr, 7, 137)
	e.ledger.SetOwner(foreign, e.owner.Address)
	terms := standardTerms()
	_, err := s.Mint(ctx, foreign, e.owner.Address, e.acceptanceSig(foreign, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidChain)
}

func TestOpenMintDuplicate(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	terms := standardTerms()
	_, err := s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)

	_, err = s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMinted)
}

func TestOpenMintAfterDisable(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	require.NoError(t, s.SetEnabled(ctx, false))

	asset := e.ownedAsset(7)
	terms := standardTerms()
	_, err := s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrNotEnabled)
}

func TestOpenMintRejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	terms := standardTerms()
	_, err := s.Mint(ctx, asset, e.owner.Address, []byte("not a signature"), terms)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignature)

	// The failed attempt released the slot; a proper signature still works.
	token, err := s.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), token.TokenID)
}

func TestOpenAndAllowlistShareBitmap(t *testing.T) {
	e := newEnv(t)
	open := newOpenStrategy(e)
	allow := NewAllowlistStrategy(e.store, e.registry, e.binder, nil, nil)
	ctx := context.Background()

	require.NoError(t, open.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	tree := installAllowlist(t, e, allow, asset)
	terms := standardTerms()

	// Open mint consumes the asset's slot for the allowlist path too.
	_, err := open.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)

	_, err = allow.Mint(ctx, asset, tree.Proof(0), e.acceptanceSig(asset, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMinted)

	// And the reverse: an allowlist mint blocks a later open mint.
	other := e.ownedAsset(8)
	tree = installAllowlist(t, e, allow, other)
	_, err = allow.Mint(ctx, other, tree.Proof(0), e.acceptanceSig(other, terms), terms)
	require.NoError(t, err)

	_, err = open.Mint(ctx, other, e.owner.Address, e.acceptanceSig(other, terms), terms)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMinted)
}

func TestOpenMintConcurrentSingleWinner(t *testing.T) {
	e := newEnv(t)
	s := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	asset := e.ownedAsset(7)
	terms := standardTerms()
	sig := e.acceptanceSig(asset, terms)

	var wins atomic.Uint64
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := s.Mint(ctx, asset, e.owner.Address, sig, terms)
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, apperrors.ErrAlreadyMinted) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, uint64(1), wins.Load())

	supply, err := e.registry.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), supply)
}

func TestOfferPathDoesNotConsumeSharedBitmap(t *testing.T) {
	e := newEnv(t)
	offers := newOfferStrategy(e)
	open := newOpenStrategy(e)
	ctx := context.Background()

	require.NoError(t, open.SetEnabled(ctx, true))

	asset := e.ownedAsset(7)
	offer, err := offers.CreateOffer(ctx, asset, time.Now().Add(time.Hour))
	require.NoError(t, err)

	terms := standardTerms()
	_, err = offers.Mint(ctx, offer.ID, asset, e.offerSig(offer.ID, asset, terms), terms)
	require.NoError(t, err)

	// Offer consumption is tracked on the offer itself, not the shared
	// bitmap: the asset's slot stays free for the other paths.
	key, bit := registry.MintSlot(asset)
	set, err := e.store.GetBit(ctx, key, bit)
	require.NoError(t, err)
	assert.False(t, set)

	_, err = open.Mint(ctx, asset, e.owner.Address, e.acceptanceSig(asset, terms), terms)
	require.NoError(t, err)

	supply, err := e.registry.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), supply)
}
