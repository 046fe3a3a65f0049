// Package config loads engine configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds every tunable of the economy engine. All values have
// defaults, so the engine starts with no environment set at all.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Persistence. DATABASE_URL selects Postgres; otherwise a local sqlite
	// file is used.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/economy.db"`

	// Optional shared quote cache.
	RedisURL string `env:"REDIS_URL"`

	// Market data provider.
	MarketDataURL     string        `env:"MARKET_DATA_URL" envDefault:"https://query1.finance.yahoo.com"`
	MarketDataTimeout time.Duration `env:"MARKET_DATA_TIMEOUT" envDefault:"10s"`
	QuoteTTL          time.Duration `env:"QUOTE_TTL" envDefault:"60s"`
	DividendTTL       time.Duration `env:"DIVIDEND_TTL" envDefault:"1h"`

	// Ledger.
	DailyReward   int64         `env:"DAILY_REWARD" envDefault:"1000000"` // minor units: $10,000
	DailyCooldown time.Duration `env:"DAILY_COOLDOWN" envDefault:"24h"`

	// Trading bounds.
	MaxLeverage    int64 `env:"MAX_LEVERAGE" envDefault:"20"`
	MaxOrderShares int64 `env:"MAX_ORDER_SHARES" envDefault:"1000000"`

	LeaderboardLimit int `env:"LEADERBOARD_LIMIT" envDefault:"10"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
