// Package config loads traderwatch's process-boundary configuration from
// the environment, following the same .env-then-os.Getenv convention the
// teacher codebase uses for its exchange credentials.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TierThresholds is the enumerated set of §4.4 tier-qualification knobs.
type TierThresholds struct {
	MinRoi7dPct      float64
	MinPnl7dAlt      float64
	MinWinRate       float64
	MinProfitFactor  float64
	MinTrades        int
	MinAccountValue  float64
}

// Config is the fully-parsed process configuration.
type Config struct {
	ExchangeInfoURL string
	ExchangeWSURL   string
	DBPath          string
	LogLevel        string

	HTTPAddr  string
	JWTSecret string

	MinPositionValueUSD float64
	LowConvictionPct    float64
	HighConvictionPct   float64
	MediumConvictionPct float64
	FreshnessWindow     time.Duration
	MaxSignalHours      int

	RequestsPerSecond    float64
	DelayBetweenRequests time.Duration
	BatchSize            int

	PositionPollInterval   time.Duration
	SignalTrackInterval    time.Duration
	VolatilityInterval     time.Duration
	FundingInterval        time.Duration
	WSReconnectDelay       time.Duration
	FillSubRefreshInterval time.Duration

	EliteTier TierThresholds
	GoodTier  TierThresholds
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads a .env file if present (missing file is not an error, mirrors
// the teacher's own godotenv.Load() fallback-to-real-env behaviour), then
// builds a Config, returning an error for anything required and missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ExchangeInfoURL: getenv("EXCHANGE_INFO_URL", "https://api.hyperliquid.xyz/info"),
		ExchangeWSURL:   getenv("EXCHANGE_WS_URL", "wss://api.hyperliquid.xyz/ws"),
		DBPath:          getenv("DB_PATH", "traderwatch.db"),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		HTTPAddr:  getenv("HTTP_ADDR", ":8090"),
		JWTSecret: getenv("JWT_SECRET", ""),

		MinPositionValueUSD: getenvFloat("MIN_POSITION_VALUE_USD", 1000),
		LowConvictionPct:    getenvFloat("LOW_CONVICTION_PCT", 5),
		HighConvictionPct:   getenvFloat("HIGH_CONVICTION_PCT", 30),
		MediumConvictionPct: getenvFloat("MEDIUM_CONVICTION_PCT", 15),
		FreshnessWindow:     getenvDuration("FRESHNESS_WINDOW", 4*time.Hour),
		MaxSignalHours:      getenvInt("MAX_SIGNAL_HOURS", 168),

		RequestsPerSecond:    getenvFloat("REQUESTS_PER_SECOND", 1.5),
		DelayBetweenRequests: getenvDuration("DELAY_BETWEEN_REQUESTS", 750*time.Millisecond),
		BatchSize:            getenvInt("BATCH_SIZE", 10),

		PositionPollInterval:   getenvDuration("POSITION_POLL_INTERVAL", 60*time.Second),
		SignalTrackInterval:    getenvDuration("SIGNAL_TRACK_INTERVAL", 30*time.Second),
		VolatilityInterval:     getenvDuration("VOLATILITY_INTERVAL", 4*time.Hour),
		FundingInterval:        getenvDuration("FUNDING_INTERVAL", 30*time.Minute),
		WSReconnectDelay:       getenvDuration("WS_RECONNECT_DELAY", 5*time.Second),
		FillSubRefreshInterval: getenvDuration("FILL_SUB_REFRESH_INTERVAL", 5*time.Minute),

		EliteTier: TierThresholds{
			MinRoi7dPct:     getenvFloat("ELITE_MIN_ROI_7D_PCT", 15),
			MinPnl7dAlt:     getenvFloat("ELITE_MIN_PNL_7D_ALT", 5000),
			MinWinRate:      getenvFloat("ELITE_MIN_WIN_RATE", 0.55),
			MinProfitFactor: getenvFloat("ELITE_MIN_PROFIT_FACTOR", 1.8),
			MinTrades:       getenvInt("ELITE_MIN_TRADES", 10),
			MinAccountValue: getenvFloat("ELITE_MIN_ACCOUNT_VALUE", 50000),
		},
		GoodTier: TierThresholds{
			MinRoi7dPct:     getenvFloat("GOOD_MIN_ROI_7D_PCT", 7),
			MinPnl7dAlt:     getenvFloat("GOOD_MIN_PNL_7D_ALT", 1000),
			MinWinRate:      getenvFloat("GOOD_MIN_WIN_RATE", 0.45),
			MinProfitFactor: getenvFloat("GOOD_MIN_PROFIT_FACTOR", 1.3),
			MinTrades:       getenvInt("GOOD_MIN_TRADES", 5),
			MinAccountValue: getenvFloat("GOOD_MIN_ACCOUNT_VALUE", 10000),
		},
	}

	if cfg.ExchangeInfoURL == "" || cfg.ExchangeWSURL == "" {
		return nil, fmt.Errorf("config: exchange endpoints must be set")
	}
	return cfg, nil
}
