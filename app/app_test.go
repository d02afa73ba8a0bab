package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tolelom/quorum/app"
	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/events"
	"github.com/tolelom/quorum/internal/testutil"
	"github.com/tolelom/quorum/storage"
	"github.com/tolelom/quorum/vm"
	"github.com/tolelom/quorum/wallet"
)

func newTestHost(t *testing.T) (*app.Host, core.State, *core.Mempool) {
	t.Helper()

	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	blockStore := testutil.NewMemBlockStore()
	bc := core.NewBlockchain(blockStore)
	require.NoError(t, bc.Init())

	mempool := core.NewMempool()
	exec := vm.NewExecutor(state, events.NewEmitter(zap.NewNop().Sugar()))

	w, err := wallet.Generate()
	require.NoError(t, err)

	parts := []consensus.Participant{{Pub: w.PrivKey().Public(), Weight: 1}}
	host := app.New(bc, state, mempool, exec, nil, parts, 1, 2, w.PrivKey(), 500, zap.NewNop().Sugar())
	host.SetInstance(bc.Height() + 1)
	return host, state, mempool
}

func fundAccount(t *testing.T, state core.State, addr string, balance uint64) {
	t.Helper()
	require.NoError(t, state.SetAccount(&core.Account{Address: addr, Balance: balance}))
}

func TestHostSeedFoldsHeightIntoNonce(t *testing.T) {
	host, _, _ := newTestHost(t)

	host.SetInstance(5)
	hi1, lo1 := host.Seed()
	host.SetInstance(6)
	hi2, lo2 := host.Seed()

	require.Equal(t, hi1, hi2, "base high half must stay fixed across heights")
	require.NotEqual(t, lo1, lo2, "low half must differ across heights")
}

func TestHostGenerateAndVerifyProposalRoundTrip(t *testing.T) {
	host, state, mempool := newTestHost(t)

	sender, err := wallet.Generate()
	require.NoError(t, err)
	receiver, err := wallet.Generate()
	require.NoError(t, err)
	fundAccount(t, state, sender.PubKey(), 1000)

	tx, err := sender.Transfer(receiver.PubKey(), 250, 0, 0)
	require.NoError(t, err)
	require.NoError(t, mempool.Add(tx))

	body := host.GenerateProposal(context.Background())
	require.NotEmpty(t, body)

	// Tentative execution inside GenerateProposal must have rolled back.
	acc, err := state.GetAccount(sender.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 1000, acc.Balance)

	require.True(t, host.VerifyProposal(context.Background(), body))

	block, err := core.DecodeBlock(body)
	require.NoError(t, err)
	require.NoError(t, host.Commit(block))

	senderAcc, err := state.GetAccount(sender.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 750, senderAcc.Balance)

	receiverAcc, err := state.GetAccount(receiver.PubKey())
	require.NoError(t, err)
	require.EqualValues(t, 250, receiverAcc.Balance)

	require.Zero(t, mempool.Size(), "committed tx must be removed from mempool")
}

func TestHostVerifyProposalRejectsWrongHeight(t *testing.T) {
	host, _, _ := newTestHost(t)

	stale := core.NewBlock(99, "deadbeef", "someone", nil)
	stale.Header.StateRoot = "whatever"
	stale.Finalize()

	body, err := stale.Encode()
	require.NoError(t, err)
	require.False(t, host.VerifyProposal(context.Background(), body))
}

func TestHostVerifyProposalRejectsBadStateRoot(t *testing.T) {
	host, _, _ := newTestHost(t)

	block := core.NewBlock(1, "", "someone", nil)
	block.Header.StateRoot = "not-the-real-root"
	block.Finalize()

	body, err := block.Encode()
	require.NoError(t, err)
	require.False(t, host.VerifyProposal(context.Background(), body))
}
