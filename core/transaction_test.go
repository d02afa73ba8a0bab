package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/wallet"
)

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.NewTx(core.TxTransfer, 0, 0, core.TransferPayload{
		To:     "deadbeef",
		Amount: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	require.NoError(t, tx.Verify())

	// Tamper with the fee after signing; verification must catch it.
	tx.Fee = 999
	require.Error(t, tx.Verify())
}

func TestBlockHashRoundTrip(t *testing.T) {
	proposer, err := wallet.Generate()
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", proposer.PubKey(), nil)
	block.Finalize()

	require.NotEmpty(t, block.Hash)
	require.Equal(t, block.ComputeHash(), block.Hash)
}

func TestBlockVerifyIntegrityDetectsTamper(t *testing.T) {
	proposer, err := wallet.Generate()
	require.NoError(t, err)

	w, err := wallet.Generate()
	require.NoError(t, err)
	tx, err := w.Transfer("aabb", 1, 0, 0)
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", proposer.PubKey(), []*core.Transaction{tx})
	block.Finalize()
	require.NoError(t, block.VerifyIntegrity())

	block.Header.TxRoot = "tampered"
	require.Error(t, block.VerifyIntegrity())
}
