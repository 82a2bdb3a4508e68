package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	cfg := LoadConfig()

	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, int64(100), cfg.ReferralReward)
	assert.Equal(t, SettlementEscrow, cfg.AuctionSettlement)
	assert.Equal(t, time.Minute, cfg.AuctionSweepInterval)
	assert.Equal(t, 3, cfg.AuctionSeedCount)
	assert.Equal(t, 24, cfg.AuctionDurationHours)
	assert.False(t, cfg.Production)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REFERRAL_REWARD", "250")
	t.Setenv("AUCTION_SETTLEMENT", SettlementDeferred)
	t.Setenv("AUCTION_SWEEP_INTERVAL", "30s")
	t.Setenv("AUCTION_SEED_COUNT", "5")

	cfg := LoadConfig()
	assert.True(t, cfg.Production)
	assert.Equal(t, int64(250), cfg.ReferralReward)
	assert.Equal(t, SettlementDeferred, cfg.AuctionSettlement)
	assert.Equal(t, 30*time.Second, cfg.AuctionSweepInterval)
	assert.Equal(t, 5, cfg.AuctionSeedCount)
	require.NoError(t, cfg.Validate())
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("REFERRAL_REWARD", "lots")
	t.Setenv("AUCTION_SWEEP_INTERVAL", "soon")

	cfg := LoadConfig()
	assert.Equal(t, int64(100), cfg.ReferralReward)
	assert.Equal(t, time.Minute, cfg.AuctionSweepInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.BotToken = "" }},
		{"unknown settlement", func(c *Config) { c.AuctionSettlement = "barter" }},
		{"negative reward", func(c *Config) { c.ReferralReward = -1 }},
		{"zero interval", func(c *Config) { c.AuctionSweepInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				BotToken:             "token",
				AuctionSettlement:    SettlementEscrow,
				AuctionSweepInterval: time.Minute,
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
