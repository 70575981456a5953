package issuance

import (
	"context"
	"fmt"
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

// OpenStrategy mints permissionlessly while the open toggle is on. No proof
// is involved: the caller must be the asset's current owner on the execution
// chain, checked directly against the ownership oracle, and must still sign
// the terms acceptance through the bound account. Open mints share the minted
// bitmap with the allowlist path, so an asset minted through either is spent
// for both.
type OpenStrategy struct {
	store    store.Store
	registry *registry.Registry
	binder   *account.Binder
	oracle   account.OwnershipOracle
	sink     registry.EventSink
	metrics  *Metrics

	mu sync.Mutex
}

// NewOpenStrategy wires the open path.
func NewOpenStrategy(st store.Store, reg *registry.Registry, binder *account.Binder, oracle account.OwnershipOracle, sink registry.EventSink, metrics *Metrics) *OpenStrategy {
	if sink == nil {
		sink = registry.NopSink{}
	}
	return &OpenStrategy{
		store:    st,
		registry: reg,
		binder:   binder,
		oracle:   oracle,
		sink:     sink,
		metrics:  metrics,
	}
}

// SetEnabled flips the open-minting toggle.
func (s *OpenStrategy) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetOpenMintEnabled(ctx, enabled); err != nil {
		return err
	}
	infrastructure.LoggerWithContext(ctx).Info("open minting toggled", "enabled", enabled)
	s.sink.Publish(ctx, events.EventOpenMintingToggled, map[string]interface{}{"enabled": enabled})
	return nil
}

// Enabled reads the open-minting toggle.
func (s *OpenStrategy) Enabled(ctx context.Context) (bool, error) {
	return s.store.OpenMintEnabled(ctx)
}

// Mint issues a license to the caller's asset while open minting is on. The
// asset must live on the execution chain; cross-chain assets go through the
// allowlist or an offer. The bitmap slot is consumed strictly before the
// account and signature calls and released if a later step fails; an account
// deployed along the way stays deployed.
func (s *OpenStrategy) Mint(ctx context.Context, asset domain.AssetRef, caller chain.Address, signature []byte, terms domain.LicenseTerms) (token domain.LicenseToken, err error) {
	start := time.Now()
	defer func() { s.metrics.recordMint(ctx, StrategyOpen, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = asset.Validate(); err != nil {
		return domain.LicenseToken{}, err
	}

	enabled, err := s.store.OpenMintEnabled(ctx)
	if err != nil {
		return domain.LicenseToken{}, err
	}
	if !enabled {
		return domain.LicenseToken{}, apperrors.ErrNotEnabled
	}

	if asset.ChainID != s.registry.ChainID() {
		return domain.LicenseToken{}, apperrors.ErrInvalidChain
	}

	owner, err := s.oracle.OwnerOf(ctx, asset)
	if err != nil {
		return domain.LicenseToken{}, fmt.Errorf("ownership lookup: %w", err)
	}
	if owner != caller {
		return domain.LicenseToken{}, apperrors.ErrNotOwner
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

	token, err = s.registry.Mint(ctx, accountAddr, asset, domain.ScopeOpen, terms)
	if err != nil {
		release()
		return domain.LicenseToken{}, err
	}
	return token, nil
}
