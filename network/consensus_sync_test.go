package network_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/crypto"
	"github.com/tolelom/quorum/message"
	"github.com/tolelom/quorum/network"
	"go.uber.org/zap"
)

func alwaysLeader(pub crypto.PublicKey) consensus.LeaderFunc {
	return func(uint64) crypto.PublicKey { return pub }
}

// TestConsensusGossiperReconcilesSummaryDiff spins up two real nodes over
// loopback TCP: one Core starts with a root Proposal the other lacks, and a
// single gossip round should leave both Cores agreeing.
func TestConsensusGossiperReconcilesSummaryDiff(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	participants := []consensus.Participant{{Pub: pub, Weight: 1}}

	ahead := consensus.NewCore(1, 1, participants, alwaysLeader(pub))
	require.NoError(t, ahead.InsertMyPropOrSolicit(0, priv, func() []byte { return []byte("block-body") }))

	behind := consensus.NewCore(1, 1, participants, alwaysLeader(pub))

	nodeA := network.NewNode("a", "127.0.0.1:0", core.NewMempool(), nil, zap.NewNop().Sugar())
	nodeB := network.NewNode("b", "127.0.0.1:0", core.NewMempool(), nil, zap.NewNop().Sugar())
	require.NoError(t, nodeA.Start())
	defer nodeA.Stop()
	require.NoError(t, nodeB.Start())
	defer nodeB.Stop()

	gossiperA := network.NewConsensusGossiper(nodeA, zap.NewNop().Sugar())
	gossiperA.SetCore(ahead)
	gossiperB := network.NewConsensusGossiper(nodeB, zap.NewNop().Sugar())
	gossiperB.SetCore(behind)

	require.NoError(t, nodeB.AddPeer("a", nodeA.Addr().String()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go gossiperB.Run(ctx, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(behind.Summary()) == len(ahead.Summary())
	}, time.Second, 20*time.Millisecond, "behind Core should learn the root proposal via gossip")
}

func TestDiffMessageEncodeDecodeRoundTrip(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	prop := message.NewProposal(1, 1, 0, []byte("body"), priv)
	d := consensus.DiffMessage{Kind: message.KindProposal, Proposal: prop}

	decoded, err := consensus.DecodeDiffMessage(d.Encode())
	require.NoError(t, err)
	require.Equal(t, message.KindProposal, decoded.Kind)
	require.True(t, decoded.Proposal.Source().Equal(pub))
}
