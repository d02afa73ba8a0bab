package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/crypto"
)

func TestKeyGenAndAddress(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, pub.Hex(), 64)
	require.Len(t, pub.Address(), 40)

	derived := priv.Public()
	require.Equal(t, pub.Hex(), derived.Hex())
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("hello quorum")
	sig := crypto.Sign(priv, data)
	require.NoError(t, crypto.Verify(pub, data, sig))
	require.Error(t, crypto.Verify(pub, []byte("tampered"), sig))
}

func TestSignRawVerifyRaw(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("message body")
	sig := crypto.SignRaw(priv, data)
	require.True(t, crypto.VerifyRaw(pub, data, sig))
	require.False(t, crypto.VerifyRaw(pub, []byte("other"), sig))
}
