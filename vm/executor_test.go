package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/events"
	"github.com/tolelom/quorum/internal/testutil"
	"github.com/tolelom/quorum/storage"
	"github.com/tolelom/quorum/vm"
	"github.com/tolelom/quorum/wallet"
	"go.uber.org/zap"
)

func newInMemState(t *testing.T) core.State {
	t.Helper()
	return storage.NewStateDB(testutil.NewMemDB())
}

func TestExecutorTransfer(t *testing.T) {
	state := newInMemState(t)
	exec := vm.NewExecutor(state, events.NewEmitter(zap.NewNop().Sugar()))

	sender, err := wallet.Generate()
	require.NoError(t, err)
	receiver, err := wallet.Generate()
	require.NoError(t, err)

	require.NoError(t, state.SetAccount(&core.Account{Address: sender.PubKey(), Balance: 1000}))

	tx, err := sender.Transfer(receiver.PubKey(), 300, 0, 0)
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", sender.PubKey(), []*core.Transaction{tx})
	require.NoError(t, exec.ExecuteTx(block, tx))

	senderAcc, err := state.GetAccount(sender.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 700, senderAcc.Balance)

	receiverAcc, err := state.GetAccount(receiver.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 300, receiverAcc.Balance)
}

func TestExecutorTransferInsufficientBalance(t *testing.T) {
	state := newInMemState(t)
	exec := vm.NewExecutor(state, events.NewEmitter(zap.NewNop().Sugar()))

	sender, err := wallet.Generate()
	require.NoError(t, err)
	require.NoError(t, state.SetAccount(&core.Account{Address: sender.PubKey(), Balance: 100}))

	tx, err := sender.Transfer("aabb", 500, 0, 0)
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", sender.PubKey(), []*core.Transaction{tx})
	require.Error(t, exec.ExecuteTx(block, tx))

	acc, err := state.GetAccount(sender.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 100, acc.Balance, "failed tx must not mutate state")
}

func TestExecutorNonceReplayRejected(t *testing.T) {
	state := newInMemState(t)
	exec := vm.NewExecutor(state, events.NewEmitter(zap.NewNop().Sugar()))

	w, err := wallet.Generate()
	require.NoError(t, err)
	require.NoError(t, state.SetAccount(&core.Account{Address: w.PubKey(), Balance: 1000}))

	tx1, err := w.Transfer("aabb", 1, 0, 0)
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", w.PubKey(), nil)
	require.NoError(t, exec.ExecuteTx(block, tx1))

	// Replaying the same (already-consumed) nonce must fail.
	require.Error(t, exec.ExecuteTx(block, tx1))
}

func TestExecuteBlockRejectsOnFirstFailure(t *testing.T) {
	state := newInMemState(t)
	exec := vm.NewExecutor(state, events.NewEmitter(zap.NewNop().Sugar()))

	w, err := wallet.Generate()
	require.NoError(t, err)
	require.NoError(t, state.SetAccount(&core.Account{Address: w.PubKey(), Balance: 50}))

	good, err := w.Transfer("aabb", 10, 0, 0)
	require.NoError(t, err)
	bad, err := w.Transfer("aabb", 1000, 1, 0)
	require.NoError(t, err)

	block := core.NewBlock(1, "0000", w.PubKey(), []*core.Transaction{good, bad})
	require.Error(t, exec.ExecuteBlock(block))
}
