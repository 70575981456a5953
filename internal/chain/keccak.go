package chain

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices with the
// legacy (pre-NIST) keccak-256 permutation.
func Keccak256(parts ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// personalMessagePrefix is the canonical signed-message envelope for a
// 32-byte payload.
const personalMessagePrefix = "\x19Ethereum Signed Message:\n32"

// PersonalDigest wraps a digest in the canonical personal-message envelope
// and hashes the result. Signers and verifiers must agree on this exact
// construction.
func PersonalDigest(inner Hash) Hash {
	return Keccak256([]byte(personalMessagePrefix), inner[:])
}
