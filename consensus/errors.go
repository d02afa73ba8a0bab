package consensus

import "errors"

// Sentinel errors returned by Core.InsertProposal, Core.InsertSolicit, and
// Core.InsertVote. Callers compare with errors.Is; every concrete failure
// wraps one of these with fmt.Errorf("%w", ...) plus message-specific
// context.
var (
	// ErrBadSignature means the message's signature does not verify against
	// its source public key.
	ErrBadSignature = errors.New("consensus: bad signature")

	// ErrBadNonce means the message's nonce does not match this Core's
	// instance nonce.
	ErrBadNonce = errors.New("consensus: bad nonce")

	// ErrEquivocation means this (tick, source) pair already produced a
	// Proposal or Solicit.
	ErrEquivocation = errors.New("consensus: player already sent something for this tick")

	// ErrDanglingParent means a Solicit's previous does not resolve to an
	// admitted Proposal or Solicit.
	ErrDanglingParent = errors.New("consensus: solicit does not extend from anything admitted")

	// ErrDanglingTarget means a Vote's voting_for does not resolve to an
	// admitted Proposal or Solicit.
	ErrDanglingTarget = errors.New("consensus: vote does not target anything admitted")

	// ErrNonMonotonicTick means a Solicit's tick does not strictly exceed
	// its parent's tick.
	ErrNonMonotonicTick = errors.New("consensus: solicit tick does not advance past its parent")

	// ErrTickBeyondHorizon means a Proposal or Solicit's tick exceeds the
	// Core's current max tick.
	ErrTickBeyondHorizon = errors.New("consensus: tick exceeds max tick")
)
