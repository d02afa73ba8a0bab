package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/internal/testutil"
	"github.com/tolelom/quorum/storage"
)

func TestStateDBSetGetAccount(t *testing.T) {
	state := storage.NewStateDB(testutil.NewMemDB())

	acc := &core.Account{Address: "alice", Balance: 500, Nonce: 2}
	require.NoError(t, state.SetAccount(acc))

	got, err := state.GetAccount("alice")
	require.NoError(t, err)
	require.Equal(t, acc, got)
}

func TestStateDBUnknownAccountIsZeroValue(t *testing.T) {
	state := storage.NewStateDB(testutil.NewMemDB())
	acc, err := state.GetAccount("nobody")
	require.NoError(t, err)
	require.Zero(t, acc.Balance)
	require.Zero(t, acc.Nonce)
}

func TestStateDBSnapshotRevert(t *testing.T) {
	state := storage.NewStateDB(testutil.NewMemDB())
	require.NoError(t, state.SetAccount(&core.Account{Address: "alice", Balance: 100}))

	snapID, err := state.Snapshot()
	require.NoError(t, err)

	require.NoError(t, state.SetAccount(&core.Account{Address: "alice", Balance: 999}))
	require.NoError(t, state.RevertToSnapshot(snapID))

	acc, err := state.GetAccount("alice")
	require.NoError(t, err)
	require.EqualValues(t, 100, acc.Balance)
}

func TestStateDBComputeRootDeterministic(t *testing.T) {
	stateA := storage.NewStateDB(testutil.NewMemDB())
	stateB := storage.NewStateDB(testutil.NewMemDB())

	require.NoError(t, stateA.SetAccount(&core.Account{Address: "alice", Balance: 100}))
	require.NoError(t, stateA.SetAccount(&core.Account{Address: "bob", Balance: 200}))

	// Insert in the opposite order; the root must not depend on insertion order.
	require.NoError(t, stateB.SetAccount(&core.Account{Address: "bob", Balance: 200}))
	require.NoError(t, stateB.SetAccount(&core.Account{Address: "alice", Balance: 100}))

	require.Equal(t, stateA.ComputeRoot(), stateB.ComputeRoot())
}
