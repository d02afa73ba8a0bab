package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := wire.NewEncoder()
	enc.WriteByte(7).
		WriteUint64(42).
		WriteUint128(1, 2).
		WriteBytes([]byte("hello")).
		WriteBytes(nil)

	dec := wire.NewDecoder(enc.Bytes())
	require.Equal(t, byte(7), dec.ReadByte())
	require.Equal(t, uint64(42), dec.ReadUint64())
	hi, lo := dec.ReadUint128()
	require.Equal(t, uint64(1), hi)
	require.Equal(t, uint64(2), lo)
	require.Equal(t, []byte("hello"), dec.ReadBytes())
	require.Empty(t, dec.ReadBytes())
	require.NoError(t, dec.Err())
	require.Zero(t, dec.Remaining())
}

func TestDecodeShortBuffer(t *testing.T) {
	dec := wire.NewDecoder([]byte{0, 0, 0})
	dec.ReadUint64()
	require.Error(t, dec.Err())
}

func TestDecodeShortBufferStopsConsuming(t *testing.T) {
	dec := wire.NewDecoder([]byte{1, 2})
	dec.ReadUint64()
	require.Error(t, dec.Err())
	// further reads must not panic once in an error state
	require.Equal(t, byte(0), dec.ReadByte())
	require.Nil(t, dec.ReadBytes())
}

func TestHashDeterministic(t *testing.T) {
	a := wire.Sum([]byte("abc"))
	b := wire.Sum([]byte("abc"))
	require.Equal(t, a, b)

	c := wire.Sum([]byte("abd"))
	require.NotEqual(t, a, c)
}

func TestHashXorIsSelfInverse(t *testing.T) {
	a := wire.Sum([]byte("a"))
	b := wire.Sum([]byte("b"))

	folded := a.Xor(b)
	require.Equal(t, a, folded.Xor(b))
	require.Equal(t, wire.ZeroHash, a.Xor(a))
}

func TestSortHashes(t *testing.T) {
	hs := []wire.Hash{
		wire.Sum([]byte("z")),
		wire.Sum([]byte("a")),
		wire.Sum([]byte("m")),
	}
	wire.SortHashes(hs)
	for i := 1; i < len(hs); i++ {
		require.True(t, hs[i-1].Less(hs[i]) || hs[i-1] == hs[i])
	}
}
