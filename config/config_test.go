package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/quorum/config"
	"github.com/tolelom/quorum/crypto"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Participants = []config.ParticipantConfig{{PubKey: pub.Hex(), Weight: 1}}
	return cfg
}

func TestDefaultConfigSeedIsDecodable(t *testing.T) {
	cfg := config.DefaultConfig()
	hi, lo, err := cfg.Seed()
	require.NoError(t, err)
	require.Zero(t, hi)
	require.Zero(t, lo)
}

func TestValidateRejectsEmptyParticipants(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroWeight(t *testing.T) {
	cfg := validConfig(t)
	cfg.Participants[0].Weight = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPubKeyHex(t *testing.T) {
	cfg := validConfig(t)
	cfg.Participants[0].PubKey = "not-hex"
	require.Error(t, cfg.Validate())
}

func TestVoteWeightsDecodesParticipants(t *testing.T) {
	cfg := validConfig(t)
	parts, err := cfg.VoteWeights()
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.EqualValues(t, 1, parts[0].Weight)
}

func TestSeedRejectsWrongLength(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SeedHex = "00"
	_, _, err := cfg.Seed()
	require.Error(t, err)
}
