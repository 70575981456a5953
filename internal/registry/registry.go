// Package registry implements the license token core: mint bookkeeping with
// sequential ids, 1:1 terms records, metadata resolution and the soulbound
// capability gate. Issuance strategies sit on top and decide who may mint;
// the registry itself never checks eligibility.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"licbind/internal/chain"
	apperrors "licbind/internal/errors"
	"licbind/internal/infrastructure"
	"licbind/internal/store"
	"licbind/pkg/contracts/domain"
	"licbind/pkg/contracts/events"
)

// BitmapScopeShared is the bitmap namespace shared by allowlist and open
// issuance: a mint through either permanently consumes the asset's slot for
// both.
const BitmapScopeShared = "registry"

// EventSink receives registry events for fan-out to subscribers.
type EventSink interface {
	Publish(ctx context.Context, eventType events.EventType, payload interface{})
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, events.EventType, interface{}) {}

// Registry is the license token core.
type Registry struct {
	store   store.Store
	issuer  chain.Address
	chainID uint64
	sink    EventSink
	now     func() time.Time
}

// NewRegistry creates a Registry. The issuer address is recorded as the
// authoritative terms issuer on every mint.
func NewRegistry(st store.Store, issuer chain.Address, chainID uint64, sink EventSink) *Registry {
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{
		store:   st,
		issuer:  issuer,
		chainID: chainID,
		sink:    sink,
		now:     time.Now,
	}
}

// ChainID returns the execution chain id the registry is deployed on.
func (r *Registry) ChainID() uint64 {
	return r.chainID
}

// Mint issues a new license token to owner and records its terms. Token ids
// are sequential starting at 1 with no reuse. The issuer, licensee and start
// time fields of the supplied terms are overwritten with authoritative
// values; everything else is recorded as given.
func (r *Registry) Mint(ctx context.Context, owner chain.Address, asset domain.AssetRef, scope domain.IssuanceScope, terms domain.LicenseTerms) (domain.LicenseToken, error) {
	if owner.IsZero() {
		return domain.LicenseToken{}, fmt.Errorf("mint to the zero address")
	}
	if err := asset.Validate(); err != nil {
		return domain.LicenseToken{}, err
	}

	now := r.now().UTC()
	terms.Issuer = r.issuer
	terms.Licensee = owner
	terms.StartTime = now

	token := domain.LicenseToken{
		Owner:    owner,
		Asset:    asset,
		MintedAt: now,
		Scope:    scope,
	}

	id, err := r.store.InsertToken(ctx, token, terms)
	if err != nil {
		return domain.LicenseToken{}, fmt.Errorf("insert token: %w", err)
	}
	token.TokenID = id

	infrastructure.LoggerWithContext(ctx).Info("license minted",
		"token_id", id,
		"owner", owner.String(),
		"asset", asset.String(),
		"scope", string(scope))

	r.sink.Publish(ctx, events.EventLicenseMinted, token)
	r.sink.Publish(ctx, events.EventLicenseTermsRecorded, map[string]interface{}{
		"token_id": id,
		"terms":    terms,
	})

	return token, nil
}

// GetToken returns a minted token.
func (r *Registry) GetToken(ctx context.Context, tokenID uint64) (domain.LicenseToken, error) {
	token, ok, err := r.store.GetToken(ctx, tokenID)
	if err != nil {
		return domain.LicenseToken{}, err
	}
	if !ok {
		return domain.LicenseToken{}, apperrors.ErrUnknownToken
	}
	return token, nil
}

// GetTerms returns the terms recorded for a minted token.
func (r *Registry) GetTerms(ctx context.Context, tokenID uint64) (domain.LicenseTerms, error) {
	terms, ok, err := r.store.GetTerms(ctx, tokenID)
	if err != nil {
		return domain.LicenseTerms{}, err
	}
	if !ok {
		return domain.LicenseTerms{}, apperrors.ErrUnknownToken
	}
	return terms, nil
}

// OwnerOf returns the fixed owner of a minted token.
func (r *Registry) OwnerOf(ctx context.Context, tokenID uint64) (chain.Address, error) {
	token, err := r.GetToken(ctx, tokenID)
	if err != nil {
		return chain.ZeroAddress, err
	}
	return token.Owner, nil
}

// TotalSupply returns the number of minted tokens.
func (r *Registry) TotalSupply(ctx context.Context) (uint64, error) {
	return r.store.TokenCount(ctx)
}

// MetadataURI resolves the metadata pointer for a minted token: the current
// base joined with the decimal token id. Unknown tokens resolve to nothing.
func (r *Registry) MetadataURI(ctx context.Context, tokenID uint64) (string, error) {
	if _, err := r.GetToken(ctx, tokenID); err != nil {
		return "", err
	}
	base, err := r.store.MetadataBase(ctx)
	if err != nil {
		return "", err
	}
	return base + strconv.FormatUint(tokenID, 10), nil
}

// MetadataBase returns the current metadata base pointer.
func (r *Registry) MetadataBase(ctx context.Context) (string, error) {
	return r.store.MetadataBase(ctx)
}

// SetMetadataBase swaps the metadata base pointer. Takes effect for all
// tokens, past and future.
func (r *Registry) SetMetadataBase(ctx context.Context, base string) error {
	if base == "" {
		return fmt.Errorf("metadata base must not be empty")
	}
	if err := r.store.SetMetadataBase(ctx, base); err != nil {
		return err
	}
	infrastructure.LoggerWithContext(ctx).Info("metadata base updated", "base", base)
	r.sink.Publish(ctx, events.EventMetadataBaseUpdated, map[string]interface{}{"base": base})
	return nil
}

// Authorize gates mutating token operations. License tokens are permanently
// bound to the account they were minted to: transfer, approval and burn are
// refused for every token, every caller, always.
func (r *Registry) Authorize(ctx context.Context, tokenID uint64, capability domain.TokenCapability) error {
	if _, err := r.GetToken(ctx, tokenID); err != nil {
		return err
	}
	switch capability {
	case domain.CapabilityTransfer, domain.CapabilityApprove, domain.CapabilityApproveAll, domain.CapabilityBurn:
		return apperrors.ErrSoulboundViolation
	default:
		return fmt.Errorf("unknown capability %q", capability)
	}
}

// BitPosition maps an asset id to its minted-bitmap slot: the id's high bits
// select a 256-bit word, the low 8 bits select the bit within it.
func BitPosition(assetID *uint256.Int) ([32]byte, uint8) {
	word := new(uint256.Int).Rsh(assetID, 8)
	bit := uint8(new(uint256.Int).And(assetID, uint256.NewInt(0xff)).Uint64())
	return chain.Word(word), bit
}

// MintSlot resolves the shared-bitmap key and bit for an asset.
func MintSlot(asset domain.AssetRef) (store.BitmapKey, uint8) {
	word, bit := BitPosition(asset.AssetID)
	return store.BitmapKey{
		Scope:    BitmapScopeShared,
		Contract: asset.Contract,
		Word:     word,
	}, bit
}
