package api

import (
	"time"
)

// AssetRefResponse mirrors AssetRefRequest in responses.
type AssetRefResponse struct {
	Contract string `json:"contract"`
	AssetID  string `json:"asset_id"`
	ChainID  uint64 `json:"chain_id"`
}

// AccountResponse describes an asset's bound account.
type AccountResponse struct {
	Account  string           `json:"account"`
	Deployed bool             `json:"deployed"`
	Created  bool             `json:"created,omitempty"`
	Asset    AssetRefResponse `json:"asset"`
	TraceID  string           `json:"trace_id,omitempty"`
}

// TokenResponse describes a minted license token.
type TokenResponse struct {
	TokenID     uint64           `json:"token_id"`
	Owner       string           `json:"owner"`
	Asset       AssetRefResponse `json:"asset"`
	MintedAt    time.Time        `json:"minted_at"`
	Scope       string           `json:"scope"`
	MetadataURI string           `json:"metadata_uri,omitempty"`
	TraceID     string           `json:"trace_id,omitempty"`
}

// TermsResponse describes the terms recorded for a token.
type TermsResponse struct {
	TokenID         uint64                 `json:"token_id"`
	Issuer          string                 `json:"issuer"`
	Licensee        string                 `json:"licensee"`
	StartTime       time.Time              `json:"start_time"`
	DurationSeconds uint64                 `json:"duration_seconds,omitempty"`
	TermsURI        string                 `json:"terms_uri,omitempty"`
	Commercial      bool                   `json:"commercial"`
	Derivatives     bool                   `json:"derivatives"`
	Attribution     bool                   `json:"attribution"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// OfferResponse describes one offer and its lifecycle state.
type OfferResponse struct {
	ID           string           `json:"id"`
	Asset        AssetRefResponse `json:"asset"`
	Expiration   time.Time        `json:"expiration"`
	CreationTime time.Time        `json:"creation_time"`
	Valid        bool             `json:"valid"`
	Minted       bool             `json:"minted"`
}

// RegistryStatusResponse summarizes the registry state surface.
type RegistryStatusResponse struct {
	TotalSupply     uint64    `json:"total_supply"`
	AllowlistRoot   string    `json:"allowlist_root"`
	OpenMintEnabled bool      `json:"open_mint_enabled"`
	MetadataBase    string    `json:"metadata_base"`
	ChainID         uint64    `json:"chain_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}
