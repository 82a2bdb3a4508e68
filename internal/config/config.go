package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	SettlementEscrow   = "escrow"
	SettlementDeferred = "deferred"
)

type Config struct {
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	BotToken      string
	Production    bool
	GameName      string
	CatalogPath   string
	MetricsAddr   string

	ReferralReward       int64
	AuctionSettlement    string
	AuctionSweepInterval time.Duration
	AuctionSeedCount     int
	AuctionDurationHours int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "starfarm"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		BotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		Production:    getEnv("APP_ENV", "development") == "production",
		GameName:      getEnv("GAME_NAME", "Star Farm"),
		CatalogPath:   getEnv("CATALOG_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),

		ReferralReward:       getEnvInt64("REFERRAL_REWARD", 100),
		AuctionSettlement:    getEnv("AUCTION_SETTLEMENT", SettlementEscrow),
		AuctionSweepInterval: getEnvDuration("AUCTION_SWEEP_INTERVAL", time.Minute),
		AuctionSeedCount:     int(getEnvInt64("AUCTION_SEED_COUNT", 3)),
		AuctionDurationHours: int(getEnvInt64("AUCTION_DURATION_HOURS", 24)),
	}
}

// Validate reports settings the process cannot start with.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.AuctionSettlement != SettlementEscrow && c.AuctionSettlement != SettlementDeferred {
		return fmt.Errorf("unknown AUCTION_SETTLEMENT %q", c.AuctionSettlement)
	}
	if c.ReferralReward < 0 {
		return fmt.Errorf("REFERRAL_REWARD must not be negative")
	}
	if c.AuctionSweepInterval <= 0 {
		return fmt.Errorf("AUCTION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
