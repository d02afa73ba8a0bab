// Package decider implements the tick-scheduling driver that sits on top
// of a consensus.Core: it decides when to propose or solicit, when to
// vote, when to reconcile with peers, and when to give up and wait
// longer. Unlike consensus.Core, Decider is not pure — it calls out to a
// host-provided Config for proposal content, network sync, and timing,
// and it logs what it swallows.
package decider

import (
	"context"
	"math/big"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/crypto"
	"github.com/tolelom/quorum/wire"
)

// Config supplies everything the Decider needs from its host application:
// proposal content, cross-instance validation, network reconciliation, the
// vote-weight table, the shared randomness seed, and this participant's
// signing key.
type Config interface {
	// GenerateProposal returns the opaque body for a fresh Proposal this
	// participant is about to author.
	GenerateProposal(ctx context.Context) []byte

	// VerifyProposal reports whether body is an acceptable Proposal body,
	// independent of the consensus graph admission rules (which check
	// signatures, nonces, ticks, equivocation, and parent/target links).
	VerifyProposal(ctx context.Context, body []byte) bool

	// SyncCore reconciles core with the rest of the network. It is
	// expected to run until ctx is cancelled: a single round of
	// request/reply is not enough, since the point is to keep
	// reconciling for as long as the driver has time to spare this tick.
	// Returning earlier is fine; returning an error is logged and
	// otherwise ignored.
	SyncCore(ctx context.Context, core *consensus.Core) error

	// VoteWeights returns the participant table for this instance.
	VoteWeights() []consensus.Participant

	// Seed returns the 128-bit randomness seed (as hi, lo) shared by every
	// honest participant, used to derive the leader schedule.
	Seed() (hi, lo uint64)

	// MySecret returns this participant's signing key.
	MySecret() crypto.PrivateKey
}

// Decider drives one consensus.Core through ticks until a Proposal
// finalizes.
type Decider struct {
	cfg    Config
	core   *consensus.Core
	log    *zap.SugaredLogger
	tick   uint64
	total  uint64
	shift  uint
	seedHi uint64
	seedLo uint64
	parts  []consensus.Participant
}

// New builds a Decider and the consensus.Core it drives, wiring the
// Decider's hash-chained leader schedule into the Core.
func New(cfg Config, log *zap.SugaredLogger) *Decider {
	parts := cfg.VoteWeights()
	var total uint64
	for _, p := range parts {
		total += p.Weight
	}
	hi, lo := cfg.Seed()
	d := &Decider{
		cfg:    cfg,
		log:    log,
		total:  total,
		shift:  uint(128 - bits.Len64(total)),
		seedHi: hi,
		seedLo: lo,
		parts:  parts,
	}
	d.core = consensus.NewCore(hi, lo, parts, d.leaderForTick)
	return d
}

// Core returns the underlying consensus engine, for callers that need to
// read its state directly (RPC status endpoints, transport reconciliation
// callers).
func (d *Decider) Core() *consensus.Core { return d.core }

// Tick returns the current tick counter.
func (d *Decider) Tick() uint64 { return d.tick }

var twoPow128 = new(big.Int).Lsh(big.NewInt(1), 128)

// leaderForTick derives the tick's leader via hash-chained rejection
// sampling over a random point in [0, total_votes): repeatedly hash a
// 128-bit running state seeded by seed+tick, take a fixed number of bits
// from the top of the digest's first 16 bytes, and retry until the point
// falls inside the weight range. The winning participant is whichever one
// the point falls into when weights are summed in table order.
//
// This gives every honest participant the same answer for the same tick
// without anyone having to broadcast a coin flip: the schedule is a pure
// function of public information (the seed) and the tick number.
func (d *Decider) leaderForTick(tick uint64) crypto.PublicKey {
	state := new(big.Int).SetUint64(d.seedHi)
	state.Lsh(state, 64)
	state.Or(state, new(big.Int).SetUint64(d.seedLo))
	state.Add(state, new(big.Int).SetUint64(tick))
	state.Mod(state, twoPow128)

	var point uint64
	buf := make([]byte, 16)
	for {
		state.FillBytes(buf)
		digest := wire.Sum(buf)
		state = new(big.Int).SetBytes(digest[:16])
		shifted := new(big.Int).Rsh(state, d.shift)
		point = shifted.Uint64()
		if point < d.total {
			break
		}
	}

	var sum uint64
	for _, p := range d.parts {
		sum += p.Weight
		if sum > point {
			return p.Pub
		}
	}
	return d.parts[len(d.parts)-1].Pub
}

// PreTick authors this participant's Proposal or Solicit for the current
// tick, if it is this participant's turn. A failed Solicit self-insert is
// logged and swallowed (e.g. because a competing message already claimed
// the tick); a failed self-insert of its own Proposal panics inside
// consensus.Core.InsertMyPropOrSolicit.
func (d *Decider) PreTick(ctx context.Context) {
	err := d.core.InsertMyPropOrSolicit(d.tick, d.cfg.MySecret(), func() []byte {
		return d.cfg.GenerateProposal(ctx)
	})
	if err != nil {
		d.log.Debugw("self-insert failed", "tick", d.tick, "error", err)
	}
}

// PostTick casts this participant's votes for the current frontier and
// advances the tick counter.
func (d *Decider) PostTick() {
	for _, err := range d.core.InsertMyVotes(d.cfg.MySecret()) {
		d.log.Debugw("self-vote failed", "tick", d.tick, "error", err)
	}
	d.tick++
	d.core.SetMaxTick(d.tick + 1)
}

// SyncState races the host's SyncCore against timeout, whichever finishes
// (or expires) first. SyncCore is expected to run until cancelled; a
// timeout is the normal way this returns, not an error condition.
func (d *Decider) SyncState(ctx context.Context, timeout time.Duration) {
	syncCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.cfg.SyncCore(syncCtx, d.core)
	}()

	select {
	case err := <-done:
		if err != nil && syncCtx.Err() == nil {
			d.log.Warnw("sync_core returned early", "error", err)
		}
	case <-syncCtx.Done():
	}
}

// TickToEnd drives PreTick/SyncState/PostTick/SyncState in a loop, with a
// per-iteration sync budget that starts at one second and grows by 10%
// each round (so a quiet network doesn't spin the loop as fast as
// possible forever), until the Core finalizes a Proposal or ctx is
// cancelled.
func (d *Decider) TickToEnd(ctx context.Context) (*[]byte, error) {
	interval := time.Second
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		d.PreTick(ctx)
		d.SyncState(ctx, interval/2)
		d.PostTick()
		d.SyncState(ctx, interval/2)

		interval = time.Duration(float64(interval) * 1.1)

		if prop, ok := d.core.GetFinalized(); ok {
			body := prop.Body
			return &body, nil
		}
	}
}
