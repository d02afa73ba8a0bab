package network

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/wire"
)

const (
	// MsgConsensusSummary carries a node's XOR-fingerprint summary of its
	// consensus.Core state, inviting the receiver to reply with any diffs
	// the sender is missing.
	MsgConsensusSummary MsgType = "consensus_summary"
	// MsgConsensusDiff carries encoded consensus.DiffMessage entries the
	// receiver should apply.
	MsgConsensusDiff MsgType = "consensus_diff"
)

type summaryPayload struct {
	Summary map[string]string `json:"summary"` // hash hex -> fingerprint hex
}

type diffPayload struct {
	Diffs [][]byte `json:"diffs"`
}

// ConsensusGossiper reconciles a local consensus.Core against connected
// peers by exchanging XOR-fingerprint summaries and the diffs they imply.
// It implements the reconciliation half of decider.Config.SyncCore: Run
// blocks, gossiping once per interval, until ctx is cancelled.
//
// A node runs one instance (one Streamlet decision) at a time but many over
// its lifetime, one per block height, each with its own consensus.Core. The
// gossiper is constructed once and outlives every individual instance; the
// current Core is swapped in via SetCore at the start of each instance.
type ConsensusGossiper struct {
	node *Node
	log  *zap.SugaredLogger

	mu   sync.RWMutex
	core *consensus.Core
}

// NewConsensusGossiper wires message handlers onto node for summary/diff
// exchange and returns the gossiper. Call SetCore before the first Run.
func NewConsensusGossiper(node *Node, log *zap.SugaredLogger) *ConsensusGossiper {
	g := &ConsensusGossiper{node: node, log: log}
	node.Handle(MsgConsensusSummary, g.handleSummary)
	node.Handle(MsgConsensusDiff, g.handleDiff)
	return g
}

// SetCore points the gossiper at the consensus.Core for the instance
// currently being decided.
func (g *ConsensusGossiper) SetCore(core *consensus.Core) {
	g.mu.Lock()
	g.core = core
	g.mu.Unlock()
}

func (g *ConsensusGossiper) currentCore() *consensus.Core {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.core
}

// Run sends this node's summary to every connected peer once per interval,
// fanned out concurrently, until ctx is cancelled.
func (g *ConsensusGossiper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.gossipRound(ctx)
		}
	}
}

func (g *ConsensusGossiper) gossipRound(ctx context.Context) {
	peers := g.node.Peers()
	if len(peers) == 0 {
		return
	}
	grp, _ := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		grp.Go(func() error {
			return g.sendSummary(p)
		})
	}
	if err := grp.Wait(); err != nil {
		g.log.Warnw("gossip round error", "error", err)
	}
}

func (g *ConsensusGossiper) sendSummary(peer *Peer) error {
	core := g.currentCore()
	if core == nil {
		return nil
	}
	summary := core.Summary()
	hexSummary := make(map[string]string, len(summary))
	for k, v := range summary {
		hexSummary[hex.EncodeToString(k.Bytes())] = hex.EncodeToString(v.Bytes())
	}
	data, err := json.Marshal(summaryPayload{Summary: hexSummary})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return peer.Send(Message{Type: MsgConsensusSummary, Payload: data})
}

// handleSummary replies with whatever diffs the peer's summary shows it's
// missing relative to our core.
func (g *ConsensusGossiper) handleSummary(peer *Peer, msg Message) {
	core := g.currentCore()
	if core == nil {
		return
	}
	var p summaryPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		g.log.Warnw("bad summary received", "peer", peer.ID, "error", err)
		return
	}
	theirs := make(map[wire.Hash]wire.Hash, len(p.Summary))
	for k, v := range p.Summary {
		kh, err1 := decodeHash(k)
		vh, err2 := decodeHash(v)
		if err1 != nil || err2 != nil {
			continue
		}
		theirs[kh] = vh
	}
	diffs := core.GetDiff(theirs)
	if len(diffs) == 0 {
		return
	}
	encoded := make([][]byte, 0, len(diffs))
	for _, d := range diffs {
		encoded = append(encoded, d.Encode())
	}
	data, err := json.Marshal(diffPayload{Diffs: encoded})
	if err != nil {
		g.log.Warnw("marshal diff failed", "error", err)
		return
	}
	if err := peer.Send(Message{Type: MsgConsensusDiff, Payload: data}); err != nil {
		g.log.Warnw("send diff failed", "peer", peer.ID, "error", err)
	}
}

func (g *ConsensusGossiper) handleDiff(peer *Peer, msg Message) {
	core := g.currentCore()
	if core == nil {
		return
	}
	var p diffPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		g.log.Warnw("bad diff received", "peer", peer.ID, "error", err)
		return
	}
	for _, raw := range p.Diffs {
		d, err := consensus.DecodeDiffMessage(raw)
		if err != nil {
			g.log.Warnw("decode diff failed", "peer", peer.ID, "error", err)
			continue
		}
		if err := core.ApplyOneDiff(d); err != nil {
			g.log.Warnw("apply diff failed", "peer", peer.ID, "error", err)
		}
	}
}

func decodeHash(s string) (wire.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return wire.Hash{}, fmt.Errorf("bad hash hex %q", s)
	}
	var h wire.Hash
	copy(h[:], b)
	return h, nil
}
