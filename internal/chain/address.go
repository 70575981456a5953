package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Address is a 20-byte account or contract address.
type Address [20]byte

// Hash is a 32-byte keccak-256 digest.
type Hash [32]byte

// ZeroAddress is the all-zero address, used to reject unset configuration.
var ZeroAddress Address

// ZeroHash is the all-zero digest.
var ZeroHash Hash

// ParseAddress decodes a 0x-prefixed 40-hex-digit address string.
func ParseAddress(s string) (Address, error) {
	var a Address
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(cleaned) != 40 {
		return a, fmt.Errorf("invalid address length: %q", s)
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for static/test values; panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the 0x-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseHash decodes a 0x-prefixed 64-hex-digit digest string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(cleaned) != 64 {
		return h, fmt.Errorf("invalid hash length: %q", s)
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// String returns the 0x-prefixed lowercase hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the digest is all zeroes.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Word returns the 32-byte big-endian encoding of v, the canonical form for
// hashing numeric fields alongside addresses and digests.
func Word(v *uint256.Int) [32]byte {
	if v == nil {
		return [32]byte{}
	}
	return v.Bytes32()
}

// Uint64Word returns the 32-byte big-endian encoding of a uint64.
func Uint64Word(v uint64) [32]byte {
	return Word(uint256.NewInt(v))
}
