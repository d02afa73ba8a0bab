// Package app wires the consensus-agnostic decider.Config contract to this
// module's actual ledger: it turns pending mempool transactions into block
// proposals, validates proposals other participants author, and drives
// network-level reconciliation of the active consensus.Core.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/crypto"
	"github.com/tolelom/quorum/network"
	"github.com/tolelom/quorum/vm"

	"go.uber.org/zap"
)

// gossipInterval is how often ConsensusGossiper exchanges summaries with
// peers while SyncCore has the floor.
const gossipInterval = 200 * time.Millisecond

// Host implements decider.Config against a Blockchain, State, Mempool, and
// Executor, and reconciles consensus state over the network via a
// ConsensusGossiper.
//
// One Host is reused across every block height; each height runs its own
// consensus instance with its own decider.Decider and consensus.Core.
// SetInstance must be called before building the Decider for a height so
// Seed folds the height into the per-instance nonce: every participant
// knows the base seed and the target height, so the derivation stays
// reproducible without anyone broadcasting it.
type Host struct {
	bc            *core.Blockchain
	state         core.State
	mempool       *core.Mempool
	exec          *vm.Executor
	gossiper      *network.ConsensusGossiper
	parts         []consensus.Participant
	baseSeedHi    uint64
	baseSeedLo    uint64
	currentHeight int64
	priv          crypto.PrivateKey
	maxBlockTxs   int
	log           *zap.SugaredLogger
}

// New creates a Host.
func New(
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	gossiper *network.ConsensusGossiper,
	parts []consensus.Participant,
	baseSeedHi, baseSeedLo uint64,
	priv crypto.PrivateKey,
	maxBlockTxs int,
	log *zap.SugaredLogger,
) *Host {
	if maxBlockTxs <= 0 {
		maxBlockTxs = 500
	}
	return &Host{
		bc:          bc,
		state:       state,
		mempool:     mempool,
		exec:        exec,
		gossiper:    gossiper,
		parts:       parts,
		baseSeedHi:  baseSeedHi,
		baseSeedLo:  baseSeedLo,
		priv:        priv,
		maxBlockTxs: maxBlockTxs,
		log:         log,
	}
}

// SetInstance points the Host at the block height about to be decided.
func (h *Host) SetInstance(height int64) { h.currentHeight = height }

// VoteWeights returns the participant table for this instance.
func (h *Host) VoteWeights() []consensus.Participant { return h.parts }

// Seed returns the per-instance 128-bit randomness seed: the shared base
// seed with the target height folded into its low half, so distinct
// heights never share a consensus.Core nonce even though the base seed
// stays fixed for the chain's lifetime.
func (h *Host) Seed() (hi, lo uint64) {
	return h.baseSeedHi, h.baseSeedLo ^ uint64(h.currentHeight)
}

// MySecret returns this participant's signing key.
func (h *Host) MySecret() crypto.PrivateKey { return h.priv }

// GenerateProposal assembles the next block from pending mempool
// transactions, tentatively executes it to compute the resulting state
// root, then rolls the tentative execution back — the real execution and
// commit happens only once the wrapping Proposal is actually finalized.
func (h *Host) GenerateProposal(_ context.Context) []byte {
	block, err := h.buildCandidate()
	if err != nil {
		h.log.Warnw("generate proposal failed", "error", err)
		return nil
	}
	body, err := block.Encode()
	if err != nil {
		h.log.Warnw("encode candidate block failed", "error", err)
		return nil
	}
	return body
}

func (h *Host) buildCandidate() (*core.Block, error) {
	tip := h.bc.Tip()
	prevHash := prevHashOf(tip)
	height := h.bc.Height() + 1

	txs := h.mempool.Pending(h.maxBlockTxs)
	proposer := h.priv.Public().Hex()
	block := core.NewBlock(height, prevHash, proposer, txs)

	snapID, err := h.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer func() {
		_ = h.state.RevertToSnapshot(snapID)
	}()

	if err := h.exec.ExecuteBlock(block); err != nil {
		return nil, fmt.Errorf("tentative execution: %w", err)
	}
	block.Header.StateRoot = h.state.ComputeRoot()
	block.Finalize()
	return block, nil
}

// VerifyProposal reports whether body decodes to a block that links to the
// current tip and whose declared state root matches what executing its
// transactions against the current state actually produces.
func (h *Host) VerifyProposal(_ context.Context, body []byte) bool {
	block, err := core.DecodeBlock(body)
	if err != nil {
		h.log.Debugw("verify proposal: decode failed", "error", err)
		return false
	}
	if err := block.VerifyIntegrity(); err != nil {
		h.log.Debugw("verify proposal: integrity check failed", "error", err)
		return false
	}

	tip := h.bc.Tip()
	wantHeight := h.bc.Height() + 1
	if block.Header.Height != wantHeight || block.Header.PrevHash != prevHashOf(tip) {
		h.log.Debugw("verify proposal: does not extend tip",
			"height", block.Header.Height, "want_height", wantHeight)
		return false
	}

	snapID, err := h.state.Snapshot()
	if err != nil {
		h.log.Warnw("verify proposal: snapshot failed", "error", err)
		return false
	}
	defer func() {
		_ = h.state.RevertToSnapshot(snapID)
	}()

	if err := h.exec.ExecuteBlock(block); err != nil {
		h.log.Debugw("verify proposal: execution failed", "error", err)
		return false
	}
	return h.state.ComputeRoot() == block.Header.StateRoot
}

// SyncCore points the shared gossiper at core and gossips with peers until
// ctx is cancelled.
func (h *Host) SyncCore(ctx context.Context, core *consensus.Core) error {
	h.gossiper.SetCore(core)
	return h.gossiper.Run(ctx, gossipInterval)
}

// Commit permanently applies block: real (non-tentative) execution,
// ledger state commit, and chain persistence. Call this once, after
// decider.Decider.TickToEnd has returned the finalized body for this
// instance and the body has been decoded into block.
func (h *Host) Commit(block *core.Block) error {
	if err := h.exec.ExecuteBlock(block); err != nil {
		return fmt.Errorf("execute finalized block: %w", err)
	}
	if root := h.state.ComputeRoot(); root != block.Header.StateRoot {
		return fmt.Errorf("state root mismatch after execution: got %s want %s", root, block.Header.StateRoot)
	}
	if err := h.state.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	if err := h.bc.AddBlock(block); err != nil {
		return fmt.Errorf("add block: %w", err)
	}
	h.mempool.Remove(txIDs(block.Transactions))
	return nil
}

func txIDs(txs []*core.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func prevHashOf(tip *core.Block) string {
	if tip == nil {
		return ""
	}
	return tip.Hash
}
