package wallet_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/wallet"
)

func TestWalletTransferBuildsSignedTx(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Transfer("deadbeef", 42, 3, 1)
	require.NoError(t, err)
	require.Equal(t, core.TxTransfer, tx.Type)
	require.Equal(t, w.PubKey(), tx.From)
	require.NoError(t, tx.Verify())
}

func TestKeystoreSaveLoadRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(t, wallet.SaveKey(path, "correct horse battery staple", w.PrivKey()))

	loaded, err := wallet.LoadKey(path, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, w.PrivKey().Hex(), loaded.Hex())

	_, err = wallet.LoadKey(path, "wrong password")
	require.Error(t, err)
}

func TestKeystoreLoadMissingFile(t *testing.T) {
	_, err := wallet.LoadKey(filepath.Join(t.TempDir(), "missing.key"), "pw")
	require.Error(t, err)
}
