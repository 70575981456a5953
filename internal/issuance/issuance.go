// Package issuance implements the three paths by which a license token can
// be minted: allowlist (Merkle membership proof plus bound-account
// signature), offer (administrator-issued single-use grants) and open
// (ownership-checked permissionless minting). Each strategy performs its own
// eligibility checks, consumes its single-use slot strictly before any
// external call, and hands the actual mint to the registry core.
package issuance

import (
	"time"

	"licbind/internal/chain"
	"licbind/pkg/contracts/domain"
)

// Strategy labels used in logs and metric attributes.
const (
	StrategyAllowlist = "allowlist"
	StrategyOffer     = "offer"
	StrategyOpen      = "open"
)

// AcceptancePayload is the canonical digest of the terms a licensee accepts:
// the asset reference, the duration in whole seconds, the grant flags and the
// terms URI. Signers hash exactly this payload; any field drift invalidates
// the signature.
func AcceptancePayload(asset domain.AssetRef, terms domain.LicenseTerms) chain.Hash {
	durWord := chain.Uint64Word(uint64(terms.Duration / time.Second))

	var flags byte
	if terms.Commercial {
		flags |= 1 << 0
	}
	if terms.Derivatives {
		flags |= 1 << 1
	}
	if terms.Attribution {
		flags |= 1 << 2
	}

	return chain.Keccak256(asset.Encode(), durWord[:], []byte{flags}, []byte(terms.TermsURI))
}

// OfferAcceptancePayload binds a terms acceptance to one specific offer, so
// a signature for one offer cannot be replayed against another covering the
// same asset.
func OfferAcceptancePayload(offerID chain.Hash, asset domain.AssetRef, terms domain.LicenseTerms) chain.Hash {
	base := AcceptancePayload(asset, terms)
	return chain.Keccak256(offerID[:], base[:])
}
