package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/wallet"
)

func TestMempoolAddPendingRemove(t *testing.T) {
	mp := core.NewMempool()
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx, err := w.Transfer("aabb", 1, 0, 0)
	require.NoError(t, err)

	require.NoError(t, mp.Add(tx))
	require.Equal(t, 1, mp.Size())

	// Duplicate insertion must be rejected.
	require.Error(t, mp.Add(tx))

	pending := mp.Pending(10)
	require.Len(t, pending, 1)

	mp.Remove([]string{tx.ID})
	require.Zero(t, mp.Size())
}
