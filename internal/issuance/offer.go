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

// OfferStrategy mints against administrator-issued single-use offers. An
// offer names one asset, carries a hard deadline, and is consumed the moment
// its mint begins. Offer state moves one way only: a revoked or minted offer
// never becomes valid again.
type OfferStrategy struct {
	store    store.Store
	registry *registry.Registry
	binder   *account.Binder
	sink     registry.EventSink
	metrics  *Metrics
	now      func() time.Time

	mu sync.Mutex
}

// NewOfferStrategy wires the offer path.
func NewOfferStrategy(st store.Store, reg *registry.Registry, binder *account.Binder, sink registry.EventSink, metrics *Metrics) *OfferStrategy {
	if sink == nil {
		sink = registry.NopSink{}
	}
	return &OfferStrategy{
		store:    st,
		registry: reg,
		binder:   binder,
		sink:     sink,
		metrics:  metrics,
		now:      time.Now,
	}
}

// CreateOffer issues a new offer for an asset with a future deadline.
func (s *OfferStrategy) CreateOffer(ctx context.Context, asset domain.AssetRef, expiration time.Time) (domain.Offer, error) {
	if err := asset.Validate(); err != nil {
		return domain.Offer{}, err
	}

	now := s.now().UTC()
	if !expiration.After(now) {
		return domain.Offer{}, apperrors.ErrOfferExpired
	}

	offer := domain.Offer{
		ID:           domain.OfferID(asset, expiration, now),
		Asset:        asset,
		Expiration:   expiration,
		CreationTime: now,
		Valid:        true,
	}
	if err := s.store.PutOffer(ctx, offer); err != nil {
		return domain.Offer{}, err
	}

	infrastructure.LoggerWithContext(ctx).Info("offer created",
		"offer_id", offer.ID.String(),
		"asset", asset.String(),
		"expiration", expiration)
	s.sink.Publish(ctx, events.EventOfferCreated, offer)
	s.metrics.recordOfferCreated(ctx)
	return offer, nil
}

// GetOffer returns an offer by id.
func (s *OfferStrategy) GetOffer(ctx context.Context, id chain.Hash) (domain.Offer, error) {
	offer, ok, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return domain.Offer{}, err
	}
	if !ok {
		return domain.Offer{}, apperrors.ErrInvalidOffer
	}
	return offer, nil
}

// ListOffers returns all offers in creation order.
func (s *OfferStrategy) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	return s.store.ListOffers(ctx)
}

// RevokeOffer invalidates a pending offer. A minted offer cannot be revoked;
// revocation of an already-revoked or unknown offer fails the same way a
// mint against it would.
func (s *OfferStrategy) RevokeOffer(ctx context.Context, id chain.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrInvalidOffer
	}
	if offer.Minted {
		return apperrors.ErrAlreadyMinted
	}
	if !offer.Valid {
		return apperrors.ErrInvalidOffer
	}

	offer.Valid = false
	if err := s.store.UpdateOffer(ctx, offer); err != nil {
		return err
	}

	infrastructure.LoggerWithContext(ctx).Info("offer revoked", "offer_id", id.String())
	s.sink.Publish(ctx, events.EventOfferRevoked, map[string]interface{}{"offer_id": id.String()})
	s.metrics.recordOfferRevoked(ctx)
	return nil
}

// Mint redeems an offer. The declared asset must match the offer's stored
// asset exactly, and its chain id must be the execution chain. The clock is
// read once; the deadline check uses that single reading. The offer is marked
// consumed strictly before the account and signature calls; if any later step
// fails the offer is restored.
func (s *OfferStrategy) Mint(ctx context.Context, offerID chain.Hash, asset domain.AssetRef, signature []byte, terms domain.LicenseTerms) (token domain.LicenseToken, err error) {
	start := time.Now()
	defer func() { s.metrics.recordMint(ctx, StrategyOffer, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return domain.LicenseToken{}, err
	}
	if !ok {
		return domain.LicenseToken{}, apperrors.ErrInvalidOffer
	}
	if offer.Minted {
		return domain.LicenseToken{}, apperrors.ErrAlreadyMinted
	}
	if !offer.Valid {
		return domain.LicenseToken{}, apperrors.ErrInvalidOffer
	}

	now := s.now().UTC()
	if offer.Expired(now) {
		return domain.LicenseToken{}, apperrors.ErrOfferExpired
	}

	if !offer.Asset.Equal(asset) {
		return domain.LicenseToken{}, apperrors.ErrInvalidOffer
	}
	if asset.ChainID != s.registry.ChainID() {
		return domain.LicenseToken{}, apperrors.ErrInvalidChain
	}

	// Consume the offer before any external call.
	consumed := offer
	consumed.Valid = false
	consumed.Minted = true
	if err = s.store.UpdateOffer(ctx, consumed); err != nil {
		return domain.LicenseToken{}, err
	}

	restore := func() {
		if restoreErr := s.store.UpdateOffer(ctx, offer); restoreErr != nil {
			infrastructure.LoggerWithContext(ctx).Error("offer restore failed",
				"offer_id", offerID.String(),
				"error", restoreErr.Error())
		}
	}

	accountAddr, created, err := s.binder.GetOrCreate(ctx, offer.Asset)
	if err != nil {
		restore()
		return domain.LicenseToken{}, err
	}
	if created {
		s.sink.Publish(ctx, events.EventAccountCreated, map[string]interface{}{
			"account": accountAddr.String(),
			"asset":   offer.Asset.String(),
		})
	}

	payload := OfferAcceptancePayload(offer.ID, offer.Asset, terms)
	ok, err = s.binder.VerifySignature(ctx, offer.Asset, payload, signature)
	if err != nil {
		restore()
		return domain.LicenseToken{}, err
	}
	if !ok {
		restore()
		return domain.LicenseToken{}, apperrors.ErrInvalidSignature
	}
	s.sink.Publish(ctx, events.EventLicenseAccepted, map[string]interface{}{
		"offer_id": offer.ID.String(),
		"asset":    offer.Asset.String(),
		"account":  accountAddr.String(),
	})

	token, err = s.registry.Mint(ctx, accountAddr, offer.Asset, domain.ScopeOffer, terms)
	if err != nil {
		restore()
		return domain.LicenseToken{}, err
	}
	return token, nil
}
