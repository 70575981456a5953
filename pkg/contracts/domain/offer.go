package domain

import (
	"time"

	"licbind/internal/chain"
)

// Offer is an administrator-issued, time-bounded, single-use grant naming one
// asset. Offer state is monotone: a valid offer becomes revoked or minted,
// both terminal.
type Offer struct {
	ID           chain.Hash `json:"id" db:"id"`
	Asset        AssetRef   `json:"asset" db:"asset"`
	Expiration   time.Time  `json:"expiration" db:"expiration"`
	CreationTime time.Time  `json:"creation_time" db:"creation_time"`
	Valid        bool       `json:"valid" db:"valid"`
	Minted       bool       `json:"minted" db:"minted"`
}

// OfferID derives the offer id. CreationTime participates so two offers for
// the same asset and expiration never collide.
func OfferID(asset AssetRef, expiration, creationTime time.Time) chain.Hash {
	expWord := chain.Uint64Word(uint64(expiration.Unix()))
	createdWord := chain.Uint64Word(uint64(creationTime.UnixNano()))
	return chain.Keccak256(asset.Encode(), expWord[:], createdWord[:])
}

// Expired reports whether the offer deadline has passed at the given clock
// reading. The clock is read once per call by the issuance layer.
func (o Offer) Expired(now time.Time) bool {
	return now.After(o.Expiration)
}
