// Package api contains the v1 API contract for the license-binding registry.
// Request types carry validation tags; all parsing into domain types happens
// in the service layer.
package api

import (
	"time"
)

// AssetRefRequest names an asset in a request. The asset id is a decimal or
// 0x-prefixed hex string so ids wider than 64 bits survive JSON.
type AssetRefRequest struct {
	Contract string `json:"contract" validate:"required"`
	AssetID  string `json:"asset_id" validate:"required"`
	ChainID  uint64 `json:"chain_id" validate:"required,min=1"`
}

// LicenseTermsRequest carries the caller-settable license terms. Issuer,
// licensee and start time are authoritative server-side and cannot be
// requested.
type LicenseTermsRequest struct {
	DurationSeconds uint64                 `json:"duration_seconds,omitempty"`
	TermsURI        string                 `json:"terms_uri,omitempty" validate:"omitempty,uri"`
	Commercial      bool                   `json:"commercial,omitempty"`
	Derivatives     bool                   `json:"derivatives,omitempty"`
	Attribution     bool                   `json:"attribution,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// AccountCreateRequest asks for explicit creation of an asset's bound
// account by its owner.
type AccountCreateRequest struct {
	Asset  AssetRefRequest `json:"asset" validate:"required"`
	Caller string          `json:"caller" validate:"required"`
}

// AllowlistMintRequest redeems an allowlist slot. Proof entries and the
// signature are hex encoded.
type AllowlistMintRequest struct {
	Asset     AssetRefRequest     `json:"asset" validate:"required"`
	Proof     []string            `json:"proof"`
	Signature string              `json:"signature" validate:"required"`
	Terms     LicenseTermsRequest `json:"terms"`
}

// OfferMintRequest redeems an offer by id. The declared asset must match the
// asset the offer was created for.
type OfferMintRequest struct {
	OfferID   string              `json:"offer_id" validate:"required"`
	Asset     AssetRefRequest     `json:"asset" validate:"required"`
	Signature string              `json:"signature" validate:"required"`
	Terms     LicenseTermsRequest `json:"terms"`
}

// OpenMintRequest mints permissionlessly while open minting is enabled.
type OpenMintRequest struct {
	Asset     AssetRefRequest     `json:"asset" validate:"required"`
	Caller    string              `json:"caller" validate:"required"`
	Signature string              `json:"signature" validate:"required"`
	Terms     LicenseTermsRequest `json:"terms"`
}

// Admin requests

// SetRootRequest installs a new allowlist root.
type SetRootRequest struct {
	Root string `json:"root" validate:"required"`
}

// OfferCreateRequest issues a new single-use offer.
type OfferCreateRequest struct {
	Asset      AssetRefRequest `json:"asset" validate:"required"`
	Expiration time.Time       `json:"expiration" validate:"required"`
}

// OpenToggleRequest flips the open-minting switch.
type OpenToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetMetadataBaseRequest re-points token metadata.
type SetMetadataBaseRequest struct {
	Base string `json:"base" validate:"required,uri"`
}
