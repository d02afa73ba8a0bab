// Package message defines the three wire messages of the consensus graph —
// Proposal, Solicit, and Vote — and the canonical hash/signature scheme
// shared by all three: serialize with the signature field blanked, hash
// that encoding, sign that hash.
package message

import (
	"fmt"

	"github.com/tolelom/quorum/crypto"
	"github.com/tolelom/quorum/wire"
)

// Kind tags a message with which concrete type it is, so a tagged union
// (consensus.DiffMessage, network envelopes) can round-trip through wire.
type Kind byte

const (
	KindProposal Kind = iota + 1
	KindSolicit
	KindVote
)

// Message is implemented by Proposal, Solicit, and Vote.
type Message interface {
	CHash() wire.Hash
	Source() crypto.PublicKey
	Signature() []byte
	VerifySig() bool
	Kind() Kind
	Encode() []byte
}

// Proposal is the root of a chain. Exactly one body is ever finalized per
// nonce.
type Proposal struct {
	Nonce    [2]uint64 // big-endian 128-bit nonce, split hi/lo
	Tick     uint64
	Body     []byte
	source   crypto.PublicKey
	signature []byte
}

// NewProposal builds and signs a Proposal for the given nonce/tick/body.
func NewProposal(nonceHi, nonceLo, tick uint64, body []byte, priv crypto.PrivateKey) *Proposal {
	p := &Proposal{
		Nonce:  [2]uint64{nonceHi, nonceLo},
		Tick:   tick,
		Body:   body,
		source: priv.Public(),
	}
	p.signature = crypto.SignRaw(priv, p.CHash().Bytes())
	return p
}

func (p *Proposal) encode(blankSig bool) []byte {
	enc := wire.NewEncoder()
	enc.WriteByte(byte(KindProposal))
	enc.WriteUint128(p.Nonce[0], p.Nonce[1])
	enc.WriteUint64(p.Tick)
	enc.WriteBytes(p.Body)
	enc.WriteBytes(p.source)
	if blankSig {
		enc.WriteBytes(nil)
	} else {
		enc.WriteBytes(p.signature)
	}
	return enc.Bytes()
}

// CHash is the canonical hash of the Proposal with its signature blanked.
func (p *Proposal) CHash() wire.Hash { return wire.Sum(p.encode(true)) }

// Encode returns the full canonical encoding, including the signature, used
// for network transport and storage.
func (p *Proposal) Encode() []byte { return p.encode(false) }

// Source is the proposer's public key.
func (p *Proposal) Source() crypto.PublicKey { return p.source }

// Signature is the raw ed25519 signature over CHash.
func (p *Proposal) Signature() []byte { return p.signature }

func (p *Proposal) Kind() Kind { return KindProposal }

// VerifySig reports whether Signature is a valid signature by Source over
// CHash.
func (p *Proposal) VerifySig() bool {
	return crypto.VerifyRaw(p.source, p.CHash().Bytes(), p.signature)
}

// DecodeProposal decodes a Proposal previously produced by Encode.
func DecodeProposal(buf []byte) (*Proposal, error) {
	dec := wire.NewDecoder(buf)
	if k := dec.ReadByte(); Kind(k) != KindProposal {
		return nil, fmt.Errorf("message: expected proposal tag, got %d", k)
	}
	p := &Proposal{}
	p.Nonce[0], p.Nonce[1] = dec.ReadUint128()
	p.Tick = dec.ReadUint64()
	p.Body = dec.ReadBytes()
	p.source = crypto.PublicKey(dec.ReadBytes())
	p.signature = dec.ReadBytes()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("message: decode proposal: %w", err)
	}
	return p, nil
}

// Solicit extends a chain by one step and asks others to vote on it.
type Solicit struct {
	Nonce     [2]uint64
	Tick      uint64
	Previous  wire.Hash
	source    crypto.PublicKey
	signature []byte
}

// NewSolicit builds and signs a Solicit extending previous at tick.
func NewSolicit(nonceHi, nonceLo, tick uint64, previous wire.Hash, priv crypto.PrivateKey) *Solicit {
	s := &Solicit{
		Nonce:    [2]uint64{nonceHi, nonceLo},
		Tick:     tick,
		Previous: previous,
		source:   priv.Public(),
	}
	s.signature = crypto.SignRaw(priv, s.CHash().Bytes())
	return s
}

func (s *Solicit) encode(blankSig bool) []byte {
	enc := wire.NewEncoder()
	enc.WriteByte(byte(KindSolicit))
	enc.WriteUint128(s.Nonce[0], s.Nonce[1])
	enc.WriteUint64(s.Tick)
	enc.WriteBytes(s.Previous.Bytes())
	enc.WriteBytes(s.source)
	if blankSig {
		enc.WriteBytes(nil)
	} else {
		enc.WriteBytes(s.signature)
	}
	return enc.Bytes()
}

func (s *Solicit) CHash() wire.Hash          { return wire.Sum(s.encode(true)) }
func (s *Solicit) Encode() []byte            { return s.encode(false) }
func (s *Solicit) Kind() Kind                { return KindSolicit }
func (s *Solicit) Source() crypto.PublicKey  { return s.source }
func (s *Solicit) Signature() []byte         { return s.signature }

func (s *Solicit) VerifySig() bool {
	return crypto.VerifyRaw(s.source, s.CHash().Bytes(), s.signature)
}

// DecodeSolicit decodes a Solicit previously produced by Encode.
func DecodeSolicit(buf []byte) (*Solicit, error) {
	dec := wire.NewDecoder(buf)
	if k := dec.ReadByte(); Kind(k) != KindSolicit {
		return nil, fmt.Errorf("message: expected solicit tag, got %d", k)
	}
	s := &Solicit{}
	s.Nonce[0], s.Nonce[1] = dec.ReadUint128()
	s.Tick = dec.ReadUint64()
	prevBytes := dec.ReadBytes()
	s.source = crypto.PublicKey(dec.ReadBytes())
	s.signature = dec.ReadBytes()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("message: decode solicit: %w", err)
	}
	copy(s.Previous[:], prevBytes)
	return s, nil
}

// Vote is a weighted endorsement of a target Proposal or Solicit.
type Vote struct {
	Nonce     [2]uint64
	VotingFor wire.Hash
	source    crypto.PublicKey
	signature []byte
}

// NewVote builds and signs a Vote for votingFor.
func NewVote(nonceHi, nonceLo uint64, votingFor wire.Hash, priv crypto.PrivateKey) *Vote {
	v := &Vote{
		Nonce:     [2]uint64{nonceHi, nonceLo},
		VotingFor: votingFor,
		source:    priv.Public(),
	}
	v.signature = crypto.SignRaw(priv, v.CHash().Bytes())
	return v
}

func (v *Vote) encode(blankSig bool) []byte {
	enc := wire.NewEncoder()
	enc.WriteByte(byte(KindVote))
	enc.WriteUint128(v.Nonce[0], v.Nonce[1])
	enc.WriteBytes(v.VotingFor.Bytes())
	enc.WriteBytes(v.source)
	if blankSig {
		enc.WriteBytes(nil)
	} else {
		enc.WriteBytes(v.signature)
	}
	return enc.Bytes()
}

func (v *Vote) CHash() wire.Hash         { return wire.Sum(v.encode(true)) }
func (v *Vote) Encode() []byte           { return v.encode(false) }
func (v *Vote) Kind() Kind               { return KindVote }
func (v *Vote) Source() crypto.PublicKey { return v.source }
func (v *Vote) Signature() []byte        { return v.signature }

func (v *Vote) VerifySig() bool {
	return crypto.VerifyRaw(v.source, v.CHash().Bytes(), v.signature)
}

// DecodeVote decodes a Vote previously produced by Encode.
func DecodeVote(buf []byte) (*Vote, error) {
	dec := wire.NewDecoder(buf)
	if k := dec.ReadByte(); Kind(k) != KindVote {
		return nil, fmt.Errorf("message: expected vote tag, got %d", k)
	}
	v := &Vote{}
	v.Nonce[0], v.Nonce[1] = dec.ReadUint128()
	votingFor := dec.ReadBytes()
	v.source = crypto.PublicKey(dec.ReadBytes())
	v.signature = dec.ReadBytes()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("message: decode vote: %w", err)
	}
	copy(v.VotingFor[:], votingFor)
	return v, nil
}

// DecodeAny decodes any of the three message types based on the leading
// tag byte, returning it as the Message interface.
func DecodeAny(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("message: empty buffer")
	}
	switch Kind(buf[0]) {
	case KindProposal:
		return DecodeProposal(buf)
	case KindSolicit:
		return DecodeSolicit(buf)
	case KindVote:
		return DecodeVote(buf)
	default:
		return nil, fmt.Errorf("message: unknown tag %d", buf[0])
	}
}
