package chain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "0x00000000000000000000000000000000000000aa", false},
		{"valid without prefix", "00000000000000000000000000000000000000aa", false},
		{"valid with whitespace", "  0x00000000000000000000000000000000000000aa ", false},
		{"too short", "0xaa", true},
		{"too long", "0x00000000000000000000000000000000000000aa00", true},
		{"non-hex", "0x0000000000000000000000000000000000000zzz", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, byte(0xaa), addr[19])
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	addr := MustParseAddress("0x1234567890abcdef1234567890abcdef12345678")
	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	text, err := addr.MarshalText()
	require.NoError(t, err)

	var back Address
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, addr, back)
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, ZeroAddress.IsZero())
	assert.False(t, MustParseAddress("0x0000000000000000000000000000000000000001").IsZero())
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("0x00000000000000000000000000000000000000000000000000000000000000ff")
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), h[31])

	_, err = ParseHash("0xff")
	assert.Error(t, err)
}

func TestKeccak256IsDeterministic(t *testing.T) {
	a := Keccak256([]byte("hello"))
	b := Keccak256([]byte("hello"))
	c := Keccak256([]byte("world"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsZero())
}

func TestKeccak256ConcatenatesParts(t *testing.T) {
	// Hashing in parts must equal hashing the concatenation.
	joined := Keccak256([]byte("foobar"))
	parts := Keccak256([]byte("foo"), []byte("bar"))
	assert.Equal(t, joined, parts)
}

func TestKeccak256KnownVector(t *testing.T) {
	// keccak256("") from the original permutation, not NIST SHA3.
	empty := Keccak256()
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		empty.String())
}

func TestPersonalDigestDiffersFromInner(t *testing.T) {
	inner := Keccak256([]byte("payload"))
	wrapped := PersonalDigest(inner)
	assert.NotEqual(t, inner, wrapped)
	// Same inner digest always wraps to the same envelope digest.
	assert.Equal(t, wrapped, PersonalDigest(inner))
}

func TestWord(t *testing.T) {
	w := Word(uint256.NewInt(7))
	assert.Equal(t, byte(7), w[31])
	assert.Equal(t, [32]byte{}, Word(nil))
	assert.Equal(t, w, Uint64Word(7))
}
