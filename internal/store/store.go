// Package store persists the registry state surface: tokens and their terms,
// the minted bitmap, the offer table, the allowlist root, the open-mint
// toggle and the metadata base pointer. Two backends exist: an in-memory
// store for tests and ephemeral runs, and a sqlite store for durable runs.
package store

import (
	"context"

	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

// BitmapKey addresses one 256-bit word of a minted bitmap. Allowlist and
// open issuance share one scope per issuing registry; the asset contract
// participates in the key so collections cannot collide on raw asset ids.
type BitmapKey struct {
	Scope    string
	Contract chain.Address
	Word     [32]byte
}

// Store is the persistence interface consumed by the registry and the
// issuance strategies. Implementations must make every method atomic with
// respect to the others; callers provide the higher-level serialization.
type Store interface {
	// InsertToken assigns the next sequential token id (starting at 1),
	// persists the token and its terms, and returns the id.
	InsertToken(ctx context.Context, token domain.LicenseToken, terms domain.LicenseTerms) (uint64, error)

	// GetToken returns a minted token by id.
	GetToken(ctx context.Context, tokenID uint64) (domain.LicenseToken, bool, error)

	// GetTerms returns the terms recorded for a minted token.
	GetTerms(ctx context.Context, tokenID uint64) (domain.LicenseTerms, bool, error)

	// TokenCount returns the number of minted tokens.
	TokenCount(ctx context.Context) (uint64, error)

	// TestAndSetBit atomically tests and sets one bitmap bit. It returns
	// true if the bit was already set (the caller must treat the slot as
	// consumed). The test and the set are a single indivisible step.
	TestAndSetBit(ctx context.Context, key BitmapKey, bit uint8) (alreadySet bool, err error)

	// GetBit reads one bitmap bit.
	GetBit(ctx context.Context, key BitmapKey, bit uint8) (bool, error)

	// ClearBit is compensation for a failed call that already consumed its
	// slot: the triggering call must leave no trace. It is never part of a
	// successful flow; committed bits never clear.
	ClearBit(ctx context.Context, key BitmapKey, bit uint8) error

	// PutOffer stores a new offer keyed by its id.
	PutOffer(ctx context.Context, offer domain.Offer) error

	// GetOffer returns an offer by id.
	GetOffer(ctx context.Context, id chain.Hash) (domain.Offer, bool, error)

	// UpdateOffer overwrites an existing offer's state flags.
	UpdateOffer(ctx context.Context, offer domain.Offer) error

	// ListOffers returns all stored offers.
	ListOffers(ctx context.Context) ([]domain.Offer, error)

	// AllowlistRoot reads the current allowlist root (zero when unset).
	AllowlistRoot(ctx context.Context) (chain.Hash, error)

	// SetAllowlistRoot stores the allowlist root.
	SetAllowlistRoot(ctx context.Context, root chain.Hash) error

	// OpenMintEnabled reads the open-mint toggle.
	OpenMintEnabled(ctx context.Context) (bool, error)

	// SetOpenMintEnabled stores the open-mint toggle.
	SetOpenMintEnabled(ctx context.Context, enabled bool) error

	// MetadataBase reads the metadata base pointer.
	MetadataBase(ctx context.Context) (string, error)

	// SetMetadataBase stores the metadata base pointer.
	SetMetadataBase(ctx context.Context, base string) error

	// Close releases backend resources.
	Close() error
}
