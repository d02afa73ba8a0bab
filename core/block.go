package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/quorum/crypto"
)

// BlockHeader contains the block metadata that is hashed. A block's
// authenticity is no longer a single signature (as in a round-robin
// proposer scheme): it comes from the weighted-vote notarization and
// three-tick finalization of the consensus.Proposal that carried this
// block's encoded body. Proposer records who authored that Proposal, for
// display and auditing.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // hash of state after executing this block
	TxRoot    string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"` // proposer's pubkey hex
}

// Block is a collection of transactions with a content hash. Block N is
// the Proposal body decided by the consensus instance for height N, whose
// nonce is the shared base seed with N XORed into its low half.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Finalize sets Hash from the current header and transaction list. Called
// once a block's content is fixed and ready to be wrapped in a
// consensus.Proposal body.
func (b *Block) Finalize() {
	b.Hash = b.ComputeHash()
}

// VerifyIntegrity checks the structural integrity of a decoded block: hash
// consistency and TxRoot correctness. It does not re-check consensus
// notarization — a caller that decoded this block out of a
// consensus.Proposal body already knows it was finalized by the weighted
// vote; VerifyIntegrity only guards against a corrupted or tampered
// encoding.
func (b *Block) VerifyIntegrity() error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("block hash mismatch: stored %s computed %s", b.Hash, computed)
	}
	if txRoot := ComputeTxRoot(b.Transactions); b.Header.TxRoot != txRoot {
		return fmt.Errorf("tx_root mismatch: header %s computed %s", b.Header.TxRoot, txRoot)
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
// Each ID is length-prefixed (4-byte big-endian) to prevent boundary ambiguity
// where different ID sets could otherwise produce the same byte sequence.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, tx := range txs {
		id := []byte(tx.ID)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf.Write(lenBuf[:])
		buf.Write(id)
	}
	return crypto.Hash(buf.Bytes())
}

// NewBlock creates an unfinalized block with the given parameters. Callers
// set StateRoot after executing the block, then call Finalize.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}

// IntegrityValidator is a network.BlockValidator that only checks a synced
// block's own structural integrity. It does not re-verify consensus
// notarization: a block arriving over the bulk catch-up sync path was
// already finalized by its origin node's consensus.Core, so the only thing
// worth guarding against here is transport corruption.
type IntegrityValidator struct{}

func (IntegrityValidator) ValidateBlock(b *Block) error {
	return b.VerifyIntegrity()
}

// Encode serializes the block for embedding as a consensus.Proposal body.
func (b *Block) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBlock decodes a block previously produced by Encode.
func DecodeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}
