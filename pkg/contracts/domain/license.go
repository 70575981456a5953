package domain

import (
	"time"

	"licbind/internal/chain"
)

// LicenseToken is a minted, non-transferable license record. Owner is fixed
// at mint time and never changes; there is no approval or burn path.
type LicenseToken struct {
	TokenID  uint64        `json:"token_id" db:"token_id"`
	Owner    chain.Address `json:"owner" db:"owner" validate:"required"`
	Asset    AssetRef      `json:"asset" db:"asset"`
	MintedAt time.Time     `json:"minted_at" db:"minted_at"`
	Scope    IssuanceScope `json:"scope" db:"scope"`
}

// IssuanceScope names which strategy issued a token.
type IssuanceScope string

const (
	ScopeAllowlist IssuanceScope = "allowlist"
	ScopeOffer     IssuanceScope = "offer"
	ScopeOpen      IssuanceScope = "open"
)

// LicenseTerms are the terms attached 1:1 to a minted license token.
// Issuer, Licensee and StartTime are authoritative: the registry overwrites
// whatever a caller supplies for these three fields.
type LicenseTerms struct {
	Issuer        chain.Address          `json:"issuer" db:"issuer"`
	Licensee      chain.Address          `json:"licensee" db:"licensee"`
	StartTime     time.Time              `json:"start_time" db:"start_time"`
	Duration      time.Duration          `json:"duration,omitempty" db:"duration"`
	TermsURI      string                 `json:"terms_uri,omitempty" db:"terms_uri"`
	Commercial    bool                   `json:"commercial,omitempty" db:"commercial"`
	Derivatives   bool                   `json:"derivatives,omitempty" db:"derivatives"`
	Attribution   bool                   `json:"attribution,omitempty" db:"attribution"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// TokenCapability names a mutating token operation.
type TokenCapability string

const (
	CapabilityTransfer   TokenCapability = "transfer"
	CapabilityApprove    TokenCapability = "approve"
	CapabilityApproveAll TokenCapability = "approve_all"
	CapabilityBurn       TokenCapability = "burn"
)
