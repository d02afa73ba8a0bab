package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tolelom/quorum/consensus"
	"github.com/tolelom/quorum/crypto"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
}

// ParticipantConfig is one entry in the weighted-voting table shared by
// every node deciding this chain's blocks.
type ParticipantConfig struct {
	PubKey string `json:"pub_key"` // 64-char hex ed25519 public key
	Weight uint64 `json:"weight"`
}

// Config holds all node configuration.
type Config struct {
	NodeID      string        `json:"node_id"`
	DataDir     string        `json:"data_dir"`
	RPCPort     int           `json:"rpc_port"`
	P2PPort     int           `json:"p2p_port"`
	MaxBlockTxs int           `json:"max_block_txs"` // max transactions per block; 0 → 500

	// Participants is the weighted-voting table. Every honest node must
	// agree on its contents and ordering for the leader schedule to be
	// reproducible across the network.
	Participants []ParticipantConfig `json:"participants"`
	// SeedHex is the 16-byte (32-char hex) randomness seed shared by every
	// participant, split into hi/lo halves for the leader schedule.
	SeedHex string `json:"seed"`

	Genesis      GenesisConfig `json:"genesis"`
	SeedPeers    []SeedPeer    `json:"seed_peers,omitempty"`     // initial peers to connect to
	TLS          *TLSConfig    `json:"tls,omitempty"`            // nil → plain TCP
	RPCAuthToken string        `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		SeedHex:     "00000000000000000000000000000000",
		Genesis: GenesisConfig{
			ChainID: "quorum-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Participants) == 0 {
		return fmt.Errorf("participants list must not be empty")
	}
	for i, p := range c.Participants {
		b, err := hex.DecodeString(p.PubKey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("participants[%d]: pub_key must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, p.PubKey)
		}
		if p.Weight == 0 {
			return fmt.Errorf("participants[%d]: weight must be positive", i)
		}
	}
	if _, _, err := c.Seed(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// VoteWeights decodes Participants into the consensus.Participant table,
// in config file order (the order every participant must agree on for the
// leader schedule to be reproducible).
func (c *Config) VoteWeights() ([]consensus.Participant, error) {
	parts := make([]consensus.Participant, len(c.Participants))
	for i, p := range c.Participants {
		pub, err := crypto.PubKeyFromHex(p.PubKey)
		if err != nil {
			return nil, fmt.Errorf("participants[%d]: %w", i, err)
		}
		parts[i] = consensus.Participant{Pub: pub, Weight: p.Weight}
	}
	return parts, nil
}

// Seed decodes SeedHex into the hi/lo halves consensus leader selection
// expects: the first 8 bytes as hi, the next 8 as lo.
func (c *Config) Seed() (hi, lo uint64, err error) {
	b, err := hex.DecodeString(c.SeedHex)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(b) != 16 {
		return 0, 0, fmt.Errorf("seed must be 16 bytes (32 hex chars), got %d bytes", len(b))
	}
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return hi, lo, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
