// Package domain contains the core domain models for the asset-bound license
// registry. These types serve as the Single Source of Truth (SSOT) for all
// layers of the application.
package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"licbind/internal/chain"
)

// AssetRef identifies one non-fungible asset, possibly on a different network
// than the issuing registry.
type AssetRef struct {
	Contract chain.Address `json:"contract" validate:"required"`
	AssetID  *uint256.Int  `json:"asset_id" validate:"required"`
	ChainID  uint64        `json:"chain_id" validate:"required,min=1"`
}

// NewAssetRef builds an AssetRef from a contract address, a uint64 asset id
// and a chain id. Asset ids wider than 64 bits come in through the *uint256
// field directly.
func NewAssetRef(contract chain.Address, assetID, chainID uint64) AssetRef {
	return AssetRef{
		Contract: contract,
		AssetID:  uint256.NewInt(assetID),
		ChainID:  chainID,
	}
}

// Validate checks structural validity: a non-zero contract, a present asset
// id and a non-zero chain id.
func (r AssetRef) Validate() error {
	if r.Contract.IsZero() {
		return fmt.Errorf("asset contract must not be the zero address")
	}
	if r.AssetID == nil {
		return fmt.Errorf("asset id is required")
	}
	if r.ChainID == 0 {
		return fmt.Errorf("chain id must not be zero")
	}
	return nil
}

// Equal reports whether two references name the same asset.
func (r AssetRef) Equal(other AssetRef) bool {
	if r.Contract != other.Contract || r.ChainID != other.ChainID {
		return false
	}
	if r.AssetID == nil || other.AssetID == nil {
		return r.AssetID == other.AssetID
	}
	return r.AssetID.Eq(other.AssetID)
}

// Encode returns the canonical byte encoding used for hashing:
// contract(20) || assetId(32) || chainId(32).
func (r AssetRef) Encode() []byte {
	assetWord := chain.Word(r.AssetID)
	chainWord := chain.Uint64Word(r.ChainID)
	out := make([]byte, 0, 20+32+32)
	out = append(out, r.Contract[:]...)
	out = append(out, assetWord[:]...)
	out = append(out, chainWord[:]...)
	return out
}

// DecodeAssetRef parses the canonical encoding produced by Encode.
func DecodeAssetRef(data []byte) (AssetRef, error) {
	if len(data) != 20+32+32 {
		return AssetRef{}, fmt.Errorf("asset encoding must be 84 bytes, got %d", len(data))
	}
	var r AssetRef
	copy(r.Contract[:], data[:20])
	r.AssetID = new(uint256.Int).SetBytes(data[20:52])
	r.ChainID = binary.BigEndian.Uint64(data[76:84])
	return r, nil
}

// String renders the reference in contract/id@chain form for logs.
func (r AssetRef) String() string {
	id := "nil"
	if r.AssetID != nil {
		id = r.AssetID.Dec()
	}
	return fmt.Sprintf("%s/%s@%d", r.Contract, id, r.ChainID)
}
