package issuance

import (
	"context"
	"sync"
	"time"

	"licbind/internal/account"
	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/internal/infrastructure"
	"licbind/internal/registry"
	"licbind/internal/store"
	"licbind/pkg/contracts/domain"
	"licbind/pkg/contracts/events"
)

// AllowlistStrategy mints against a published Merkle root. Eligibility is an
// inclusion proof for the asset plus a terms-acceptance signature from the
// asset's bound account.
type AllowlistStrategy struct {
	store    store.Store
	registry *registry.Registry
	binder   *account.Binder
	sink     registry.EventSink
	metrics  *Metrics

	// Serializes mints so slot consumption and its compensation never
	// interleave with a competing attempt.
	mu sync.Mutex
}

// NewAllowlistStrategy wires the allowlist path.
func NewAllowlistStrategy(st store.Store, reg *registry.Registry, binder *account.Binder, sink registry.EventSink, metrics *Metrics) *AllowlistStrategy {
	if sink == nil {
		sink = registry.NopSink{}
	}
	return &AllowlistStrategy{
		store:    st,
		registry: reg,
		binder:   binder,
		sink:     sink,
		metrics:  metrics,
	}
}

// SetRoot installs a new allowlist root, replacing the previous one in full.
// The zero root is refused: clearing the allowlist is expressed by a root
// with no members, never by zero.
func (s *AllowlistStrategy) SetRoot(ctx context.Context, root chain.Hash) error {
	if root.IsZero() {
		return apperrors.ErrZeroRoot
	}
	if err := s.store.SetAllowlistRoot(ctx, root); err != nil {
		return err
	}
	infrastructure.LoggerWithContext(ctx).Info("allowlist root updated", "root", root.String())
	s.sink.Publish(ctx, events.EventAllowlistRootUpdated, map[string]interface{}{"root": root.String()})
	s.metrics.recordRootUpdate(ctx)
	return nil
}

// Root returns the installed allowlist root, zero when none is set.
func (s *AllowlistStrategy) Root(ctx context.Context) (chain.Hash, error) {
	return s.store.AllowlistRoot(ctx)
}

// VerifyMembership checks an asset's inclusion proof against the installed
// root. No root installed means nothing is a member.
func (s *AllowlistStrategy) VerifyMembership(ctx context.Context, asset domain.AssetRef, proof []chain.Hash) (bool, error) {
	root, err := s.store.AllowlistRoot(ctx)
	if err != nil {
		return false, err
	}
	if root.IsZero() {
		return false, nil
	}
	return VerifyProof(LeafHash(asset), proof, root), nil
}

// Mint issues a license for an allowlisted asset. The order is fixed: proof,
// slot consumption, account resolution, signature, mint. The slot is
// consumed strictly before the account and signature calls; if any later
// step fails the slot is released. A bound account deployed along the way
// stays deployed: account creation is a standalone operation, not part of
// the compensated issuance state.
func (s *AllowlistStrategy) Mint(ctx context.Context, asset domain.AssetRef, proof []chain.Hash, signature []byte, terms domain.LicenseTerms) (token domain.LicenseToken, err error) {
	start := time.Now()
	defer func() { s.metrics.recordMint(ctx, StrategyAllowlist, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = asset.Validate(); err != nil {
		return domain.LicenseToken{}, err
	}

	member, err := s.VerifyMembership(ctx, asset, proof)
	if err != nil {
		return domain.LicenseToken{}, err
	}
	if !member {
		return domain.LicenseToken{}, apperrors.ErrInvalidProof
	}

	key, bit := registry.MintSlot(asset)
	already, err := s.store.TestAndSetBit(ctx, key, bit)
	if err != nil {
		return domain.LicenseToken{}, err
	}
	if already {
		return domain.LicenseToken{}, apperrors.ErrAlreadyMinted
	}

	release := func() {
		if clearErr := s.store.ClearBit(ctx, key, bit); clearErr != nil {
			infrastructure.LoggerWithContext(ctx).Error("slot release failed",
				"asset", asset.String(),
				"error", clearErr.Error())
		}
	}

	accountAddr, created, err := s.binder.GetOrCreate(ctx, asset)
	if err != nil {
		release()
		return domain.LicenseToken{}, err
	}
	if created {
		s.sink.Publish(ctx, events.EventAccountCreated, map[string]interface{}{
			"account": accountAddr.String(),
			"asset":   asset.String(),
		})
	}

	payload := AcceptancePayload(asset, terms)
	ok, err := s.binder.VerifySignature(ctx, asset, payload, signature)
	if err != nil {
		release()
		return domain.LicenseToken{}, err
	}
	if !ok {
		release()
		return domain.LicenseToken{}, apperrors.ErrInvalidSignature
	}
	s.sink.Publish(ctx, events.EventLicenseAccepted, map[string]interface{}{
		"asset":   asset.String(),
		"account": accountAddr.String(),
	})

	token, err = s.registry.Mint(ctx, accountAddr, asset, domain.ScopeAllowlist, terms)
	if err != nil {
		release()
		return domain.LicenseToken{}, err
	}
	return token, nil
}
