// Package consensus implements the Core engine of a single-shot,
// weighted-voting, chained-proposal BFT consensus protocol in the
// Streamlet family. Core is pure: it performs no I/O, starts no
// goroutines, and owns no clock. Everything it needs — messages to admit,
// the current tick horizon, whose turn it is to lead — is handed to it by
// a caller (see package decider for the scheduling half).
package consensus

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/tolelom/quorum/crypto"
	"github.com/tolelom/quorum/message"
	"github.com/tolelom/quorum/wire"
)

// Participant is one weighted voter in a Core instance.
type Participant struct {
	Pub    crypto.PublicKey
	Weight uint64
}

// LeaderFunc maps a tick to the public key expected to lead it. Core treats
// it as an opaque, deterministic function; package decider is responsible
// for constructing one that every honest participant agrees on.
type LeaderFunc func(tick uint64) crypto.PublicKey

// Core holds the message graph for one consensus instance (one nonce) and
// answers admission, notarization, and finalization queries against it. A
// zero Core is not usable; construct one with NewCore.
type Core struct {
	validProposals map[wire.Hash]*message.Proposal
	voteSolicits   map[wire.Hash]*message.Solicit
	votes          map[wire.Hash]*message.Vote
	tickSource     map[tickSourceKey]struct{}

	nonceHi, nonceLo uint64
	leaderFor        LeaderFunc

	voteWeight map[string]uint64 // keyed by raw pubkey bytes
	totalVotes uint64

	maxTick atomic.Uint64

	// CompatLeaderShortCircuit reproduces a historical bug in the reference
	// implementation: a Proposal or Solicit whose signature fails to verify
	// is still admitted as long as its claimed source is not the tick's
	// expected leader (the signature check was gated on leader identity
	// instead of being unconditional). Default false: signatures are always
	// required, matching the conservative fix. Set true only to reproduce
	// interop with a peer running the historical behavior.
	CompatLeaderShortCircuit bool
}

type tickSourceKey struct {
	tick   uint64
	source string
}

// NewCore constructs a Core for the given instance nonce, participant
// weight table, and leader schedule. MaxTick starts at 1, matching the
// reference implementation: a fresh Core accepts tick-0 and tick-1
// messages before anyone calls SetMaxTick.
func NewCore(nonceHi, nonceLo uint64, participants []Participant, leaderFor LeaderFunc) *Core {
	c := &Core{
		validProposals: make(map[wire.Hash]*message.Proposal),
		voteSolicits:   make(map[wire.Hash]*message.Solicit),
		votes:          make(map[wire.Hash]*message.Vote),
		tickSource:     make(map[tickSourceKey]struct{}),
		nonceHi:        nonceHi,
		nonceLo:        nonceLo,
		leaderFor:      leaderFor,
		voteWeight:     make(map[string]uint64, len(participants)),
	}
	for _, p := range participants {
		c.voteWeight[string(p.Pub)] = p.Weight
		c.totalVotes += p.Weight
	}
	c.maxTick.Store(1)
	return c
}

// SetMaxTick advances the tick horizon. Messages with tick beyond it are
// rejected with ErrTickBeyondHorizon.
func (c *Core) SetMaxTick(tick uint64) { c.maxTick.Store(tick) }

// MaxTick returns the current tick horizon.
func (c *Core) MaxTick() uint64 { return c.maxTick.Load() }

// Summary returns, for every admitted Proposal and Solicit, the XOR of the
// canonical hashes of every Vote that targets it (ZeroHash if none). It is
// the fingerprint exchanged during reconciliation: two Cores with the same
// summary for a hash agree on every vote for that hash (modulo XOR
// collisions, which are cryptographically negligible).
func (c *Core) Summary() map[wire.Hash]wire.Hash {
	out := make(map[wire.Hash]wire.Hash, len(c.validProposals)+len(c.voteSolicits))
	for h := range c.validProposals {
		out[h] = wire.ZeroHash
	}
	for h := range c.voteSolicits {
		out[h] = wire.ZeroHash
	}
	for h, v := range c.votes {
		out[v.VotingFor] = out[v.VotingFor].Xor(h)
	}
	return out
}

// DiffMessage is a tagged union of the three message kinds, used to
// represent the set of messages one Core has that another lacks.
type DiffMessage struct {
	Kind     message.Kind
	Proposal *message.Proposal
	Solicit  *message.Solicit
	Vote     *message.Vote
}

// Encode serializes a DiffMessage as the inner message's own encoding,
// whose leading byte is its Kind tag.
func (d DiffMessage) Encode() []byte {
	switch d.Kind {
	case message.KindProposal:
		return d.Proposal.Encode()
	case message.KindSolicit:
		return d.Solicit.Encode()
	case message.KindVote:
		return d.Vote.Encode()
	default:
		return nil
	}
}

// DecodeDiffMessage decodes a DiffMessage previously produced by Encode.
func DecodeDiffMessage(buf []byte) (DiffMessage, error) {
	m, err := message.DecodeAny(buf)
	if err != nil {
		return DiffMessage{}, fmt.Errorf("consensus: decode diff message: %w", err)
	}
	switch v := m.(type) {
	case *message.Proposal:
		return DiffMessage{Kind: message.KindProposal, Proposal: v}, nil
	case *message.Solicit:
		return DiffMessage{Kind: message.KindSolicit, Solicit: v}, nil
	case *message.Vote:
		return DiffMessage{Kind: message.KindVote, Vote: v}, nil
	default:
		return DiffMessage{}, fmt.Errorf("consensus: unexpected message type in diff")
	}
}

// GetDiff returns, given a peer's Summary, the ordered set of messages this
// Core has that the peer is missing or disagrees about: for every hash
// whose summary differs, the Proposal/Solicit itself (if the peer lacks it
// entirely) plus every Vote this Core holds for that hash. The result is
// sorted by tick ascending, with votes (which carry no tick) placed last.
func (c *Core) GetDiff(theirSummary map[wire.Hash]wire.Hash) []DiffMessage {
	ourSummary := c.Summary()

	votesByCandidate := make(map[wire.Hash][]*message.Vote)
	for _, v := range c.votes {
		votesByCandidate[v.VotingFor] = append(votesByCandidate[v.VotingFor], v)
	}

	var out []DiffMessage
	for hash, prop := range c.validProposals {
		theirVal, theyHave := theirSummary[hash]
		if ourSummary[hash] != theirVal || !theyHave {
			if !theyHave {
				out = append(out, DiffMessage{Kind: message.KindProposal, Proposal: prop})
			}
			for _, v := range votesByCandidate[hash] {
				out = append(out, DiffMessage{Kind: message.KindVote, Vote: v})
			}
		}
	}
	for hash, solc := range c.voteSolicits {
		theirVal, theyHave := theirSummary[hash]
		if ourSummary[hash] != theirVal || !theyHave {
			if !theyHave {
				out = append(out, DiffMessage{Kind: message.KindSolicit, Solicit: solc})
			}
			for _, v := range votesByCandidate[hash] {
				out = append(out, DiffMessage{Kind: message.KindVote, Vote: v})
			}
		}
	}

	const voteSortTick = ^uint64(0)
	sort.SliceStable(out, func(i, j int) bool {
		return tickOf(out[i], voteSortTick) < tickOf(out[j], voteSortTick)
	})
	return out
}

func tickOf(d DiffMessage, voteSentinel uint64) uint64 {
	switch d.Kind {
	case message.KindProposal:
		return d.Proposal.Tick
	case message.KindSolicit:
		return d.Solicit.Tick
	default:
		return voteSentinel
	}
}

// ApplyOneDiff admits a single DiffMessage, dispatching to InsertProposal,
// InsertSolicit, or InsertVote. Callers reconciling with an untrusted peer
// should expect and tolerate errors here: a malicious or stale peer can
// send messages this Core rejects.
func (c *Core) ApplyOneDiff(d DiffMessage) error {
	switch d.Kind {
	case message.KindProposal:
		return c.InsertProposal(d.Proposal)
	case message.KindSolicit:
		return c.InsertSolicit(d.Solicit)
	case message.KindVote:
		return c.InsertVote(d.Vote)
	default:
		return fmt.Errorf("consensus: diff message has no payload")
	}
}

// InsertProposal admits prop if it passes every admission check, keying it
// by its canonical hash.
func (c *Core) InsertProposal(prop *message.Proposal) error {
	isLeader := c.leaderFor(prop.Tick).Equal(prop.Source())
	if !prop.VerifySig() {
		if !c.CompatLeaderShortCircuit || isLeader {
			return fmt.Errorf("%w: proposal at tick %d", ErrBadSignature, prop.Tick)
		}
	}
	if prop.Nonce[0] != c.nonceHi || prop.Nonce[1] != c.nonceLo {
		return fmt.Errorf("%w: proposal nonce", ErrBadNonce)
	}
	if prop.Tick > c.MaxTick() {
		return fmt.Errorf("%w: proposal tick %d > max tick %d", ErrTickBeyondHorizon, prop.Tick, c.MaxTick())
	}
	key := tickSourceKey{tick: prop.Tick, source: string(prop.Source())}
	if _, dup := c.tickSource[key]; dup {
		return fmt.Errorf("%w: tick %d", ErrEquivocation, prop.Tick)
	}
	c.tickSource[key] = struct{}{}
	c.validProposals[prop.CHash()] = prop
	return nil
}

// InsertSolicit admits solicit if it passes every admission check.
func (c *Core) InsertSolicit(solicit *message.Solicit) error {
	isLeader := c.leaderFor(solicit.Tick).Equal(solicit.Source())
	if !solicit.VerifySig() {
		if !c.CompatLeaderShortCircuit || isLeader {
			return fmt.Errorf("%w: solicit at tick %d", ErrBadSignature, solicit.Tick)
		}
	}
	if solicit.Nonce[0] != c.nonceHi || solicit.Nonce[1] != c.nonceLo {
		return fmt.Errorf("%w: solicit nonce", ErrBadNonce)
	}
	if solicit.Tick > c.MaxTick() {
		return fmt.Errorf("%w: solicit tick %d > max tick %d", ErrTickBeyondHorizon, solicit.Tick, c.MaxTick())
	}
	parentTick, ok := c.tickOfNode(solicit.Previous)
	if !ok {
		return fmt.Errorf("%w: solicit previous %s", ErrDanglingParent, solicit.Previous)
	}
	if solicit.Tick <= parentTick {
		return fmt.Errorf("%w: solicit tick %d <= parent tick %d", ErrNonMonotonicTick, solicit.Tick, parentTick)
	}
	key := tickSourceKey{tick: solicit.Tick, source: string(solicit.Source())}
	if _, dup := c.tickSource[key]; dup {
		return fmt.Errorf("%w: tick %d", ErrEquivocation, solicit.Tick)
	}
	c.tickSource[key] = struct{}{}
	c.voteSolicits[solicit.CHash()] = solicit
	return nil
}

// InsertVote admits vote if it passes every admission check.
func (c *Core) InsertVote(vote *message.Vote) error {
	if !vote.VerifySig() {
		return fmt.Errorf("%w: vote for %s", ErrBadSignature, vote.VotingFor)
	}
	if vote.Nonce[0] != c.nonceHi || vote.Nonce[1] != c.nonceLo {
		return fmt.Errorf("%w: vote nonce", ErrBadNonce)
	}
	if _, ok := c.tickOfNode(vote.VotingFor); !ok {
		return fmt.Errorf("%w: %s", ErrDanglingTarget, vote.VotingFor)
	}
	c.votes[vote.CHash()] = vote
	return nil
}

// tickOfNode returns the tick of an admitted Proposal or Solicit by hash.
func (c *Core) tickOfNode(h wire.Hash) (uint64, bool) {
	if s, ok := c.voteSolicits[h]; ok {
		return s.Tick, true
	}
	if p, ok := c.validProposals[h]; ok {
		return p.Tick, true
	}
	return 0, false
}

// isNotarized reports whether the sum of vote weight targeting h exceeds
// two-thirds of total weight.
func (c *Core) isNotarized(h wire.Hash) bool {
	var sum uint64
	for _, v := range c.votes {
		if v.VotingFor == h {
			sum += c.voteWeight[string(v.Source())]
		}
	}
	return sum*3 > c.totalVotes*2
}

func (c *Core) lookupLen(h wire.Hash, memo map[wire.Hash]uint64) uint64 {
	if v, ok := memo[h]; ok {
		return v
	}
	var v uint64
	if _, ok := c.validProposals[h]; ok {
		v = 0
	} else if s, ok := c.voteSolicits[h]; ok {
		v = c.lookupLen(s.Previous, memo) + 1
	}
	memo[h] = v
	return v
}

// GetLNCTips returns the hashes of every notarized node at the maximum
// chain length, sorted ascending for determinism. Ties (two notarized
// chains of equal maximal length) are both returned; a caller that wants a
// single tip picks the first.
func (c *Core) GetLNCTips() []wire.Hash {
	memo := make(map[wire.Hash]uint64)
	type hashLen struct {
		hash wire.Hash
		len  uint64
	}
	var candidates []hashLen
	for h := range c.validProposals {
		if c.isNotarized(h) {
			candidates = append(candidates, hashLen{h, c.lookupLen(h, memo)})
		}
	}
	for h := range c.voteSolicits {
		if c.isNotarized(h) {
			candidates = append(candidates, hashLen{h, c.lookupLen(h, memo)})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	var longest uint64
	for _, cand := range candidates {
		if cand.len > longest {
			longest = cand.len
		}
	}
	var tips []wire.Hash
	for _, cand := range candidates {
		if cand.len == longest {
			tips = append(tips, cand.hash)
		}
	}
	wire.SortHashes(tips)
	return tips
}

// GetFinalized returns the Proposal at the root of a chain that has
// accumulated three consecutive, strictly descending tick numbers walking
// back from a longest-notarized-chain tip, if one exists.
func (c *Core) GetFinalized() (*message.Proposal, bool) {
	lnc := make(map[wire.Hash]struct{})
	for _, h := range c.GetLNCTips() {
		lnc[h] = struct{}{}
	}

	var tipHashes []wire.Hash
	for h := range c.voteSolicits {
		if _, ok := lnc[h]; ok {
			tipHashes = append(tipHashes, h)
		}
	}
	wire.SortHashes(tipHashes)

	for _, tip := range tipHashes {
		var ticks []uint64
		cur := tip
		var root *message.Proposal
		for {
			if s, ok := c.voteSolicits[cur]; ok {
				ticks = append(ticks, s.Tick)
				cur = s.Previous
				continue
			}
			if p, ok := c.validProposals[cur]; ok {
				ticks = append(ticks, p.Tick)
				root = p
				break
			}
			// An admitted solicit's parent is always admitted (checked at
			// insertion time), so this cannot happen.
			panic("consensus: solicit chain dangles")
		}
		for i := 0; i+2 < len(ticks); i++ {
			if ticks[i] == ticks[i+1]+1 && ticks[i+1] == ticks[i+2]+1 {
				return root, true
			}
		}
	}
	return nil, false
}

// InsertMyVotes votes for every node that extends the current
// longest-notarized-chain tips (or, if there is no LNC yet, for every
// admitted Proposal). Votes are not subject to the tick_source rule, so it
// may vote for several sibling Solicits extending the same tip. A
// self-signed vote for an admitted node always passes admission, so a
// failure here indicates a programmer error and is swallowed after logging
// by the caller (see package decider), matching the reference driver's use
// of this as a best-effort self-update.
func (c *Core) InsertMyVotes(priv crypto.PrivateKey) []error {
	tips := make(map[wire.Hash]struct{})
	for _, h := range c.GetLNCTips() {
		tips[h] = struct{}{}
	}

	var errs []error
	if len(tips) == 0 {
		for h := range c.validProposals {
			v := message.NewVote(c.nonceHi, c.nonceLo, h, priv)
			if err := c.InsertVote(v); err != nil {
				errs = append(errs, err)
			}
		}
		return errs
	}
	for h, solicit := range c.voteSolicits {
		if _, ok := tips[solicit.Previous]; ok {
			v := message.NewVote(c.nonceHi, c.nonceLo, h, priv)
			if err := c.InsertVote(v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// InsertMyPropOrSolicit inserts this participant's own contribution for
// tick, if it is this participant's turn to lead. If a longest-notarized
// chain already exists, it extends an arbitrary tip with a Solicit;
// otherwise it authors a fresh Proposal via genProp. Does nothing if it is
// not this participant's turn.
func (c *Core) InsertMyPropOrSolicit(tick uint64, priv crypto.PrivateKey, genProp func() []byte) error {
	if !c.leaderFor(tick).Equal(priv.Public()) {
		return nil
	}
	tips := c.GetLNCTips()
	if len(tips) > 0 {
		solicit := message.NewSolicit(c.nonceHi, c.nonceLo, tick, tips[0], priv)
		return c.InsertSolicit(solicit)
	}
	prop := message.NewProposal(c.nonceHi, c.nonceLo, tick, genProp(), priv)
	if err := c.InsertProposal(prop); err != nil {
		panic(fmt.Sprintf("consensus: could not insert my own proposal: %v", err))
	}
	return nil
}

// Snapshot returns a deep, independent copy of c, safe to read concurrently
// with further writes to the original. max_tick is copied by value at the
// moment of the snapshot.
func (c *Core) Snapshot() *Core {
	clone := &Core{
		validProposals: make(map[wire.Hash]*message.Proposal, len(c.validProposals)),
		voteSolicits:   make(map[wire.Hash]*message.Solicit, len(c.voteSolicits)),
		votes:          make(map[wire.Hash]*message.Vote, len(c.votes)),
		tickSource:     make(map[tickSourceKey]struct{}, len(c.tickSource)),
		nonceHi:        c.nonceHi,
		nonceLo:        c.nonceLo,
		leaderFor:      c.leaderFor,
		voteWeight:     make(map[string]uint64, len(c.voteWeight)),
		totalVotes:     c.totalVotes,

		CompatLeaderShortCircuit: c.CompatLeaderShortCircuit,
	}
	for h, v := range c.validProposals {
		clone.validProposals[h] = v
	}
	for h, v := range c.voteSolicits {
		clone.voteSolicits[h] = v
	}
	for h, v := range c.votes {
		clone.votes[h] = v
	}
	for k := range c.tickSource {
		clone.tickSource[k] = struct{}{}
	}
	for k, v := range c.voteWeight {
		clone.voteWeight[k] = v
	}
	clone.maxTick.Store(c.MaxTick())
	return clone
}

// DebugGraphviz renders the message graph as a Graphviz "digraph" string:
// Proposals as diamonds, Solicits as boxes (tips of the longest notarized
// chain highlighted), with an edge from each Solicit to its parent.
func (c *Core) DebugGraphviz() string {
	tips := make(map[wire.Hash]struct{})
	for _, h := range c.GetLNCTips() {
		tips[h] = struct{}{}
	}

	var hashes []wire.Hash
	for h := range c.validProposals {
		hashes = append(hashes, h)
	}
	wire.SortHashes(hashes)

	out := "digraph G {\n"
	for _, h := range hashes {
		prop := c.validProposals[h]
		out += fmt.Sprintf("%q [label=%q, shape=diamond];\n", h.String(), string(prop.Body))
	}

	var solicitHashes []wire.Hash
	for h := range c.voteSolicits {
		solicitHashes = append(solicitHashes, h)
	}
	wire.SortHashes(solicitHashes)

	for _, h := range solicitHashes {
		solc := c.voteSolicits[h]
		color := "whitesmoke"
		if _, ok := tips[h]; ok {
			color = "aliceblue"
		}
		label := fmt.Sprintf("%s[%d]", h.String()[:8], solc.Tick)
		out += fmt.Sprintf("%q [label=%q, shape=box, style=filled, fillcolor=%s];\n", h.String(), label, color)
		out += fmt.Sprintf("%q -> %q;\n", h.String(), solc.Previous.String())
	}
	out += "}\n"
	return out
}
