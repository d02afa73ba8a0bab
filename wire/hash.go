package wire

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Hash is the 32-byte canonical hash used to key every map in the consensus
// engine and to identify every signed message. The algorithm itself is not
// specified by the protocol — any fixed 32-byte hash will do — blake2b-256
// is picked here because it is already part of the module's dependency
// surface and is faster than SHA-256 on typical hardware.
type Hash [32]byte

// ZeroHash is the all-zero sentinel used by Core.Summary for nodes with no
// votes yet.
var ZeroHash Hash

// Sum hashes data and returns the canonical Hash.
func Sum(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the hash as a byte slice, for embedding in an Encoder.
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Xor returns the bytewise XOR of h and other, used by the reconciliation
// summary to fold many vote hashes into one fixed-size fingerprint.
func (h Hash) Xor(other Hash) Hash {
	var out Hash
	for i := range out {
		out[i] = h[i] ^ other[i]
	}
	return out
}

// Less orders hashes lexicographically, used everywhere a deterministic
// tie-break over a set of hashes is required (LNC tips, finalized-tip
// iteration order).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// SortHashes sorts a slice of Hash in ascending order in place.
func SortHashes(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}
