package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path (skipped when path is
// empty), merges it on top of the built-in defaults, applies CIL_*
// environment variable overrides, and returns the final Config. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CIL_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Server.Addr, "CIL_SERVER_ADDR")
	setDuration(&cfg.Server.ShutdownTimeout, "CIL_SERVER_SHUTDOWN_TIMEOUT")

	setStr(&cfg.Store.Backend, "CIL_STORE_BACKEND")
	setStr(&cfg.Store.PostgresDSN, "CIL_STORE_POSTGRES_DSN")
	setStr(&cfg.Store.RedisAddr, "CIL_STORE_REDIS_ADDR")
	setStr(&cfg.Store.RedisPassword, "CIL_STORE_REDIS_PASSWORD")
	setInt(&cfg.Store.RedisDB, "CIL_STORE_REDIS_DB")
	setDuration(&cfg.Store.CacheTTL, "CIL_STORE_CACHE_TTL")

	setStr(&cfg.Staking.Asset, "CIL_STAKING_ASSET")
	setStr(&cfg.Staking.Custody, "CIL_STAKING_CUSTODY")
	setDuration(&cfg.Staking.LockPeriod, "CIL_STAKING_LOCK_PERIOD")
	setInt(&cfg.Staking.WeightExponent, "CIL_STAKING_WEIGHT_EXPONENT")

	setStr(&cfg.Market.NativeAsset, "CIL_MARKET_NATIVE_ASSET")
	setStr(&cfg.Market.Custody, "CIL_MARKET_CUSTODY")
	setDecimal(&cfg.Market.FeeRate, "CIL_MARKET_FEE_RATE")
	setDecimal(&cfg.Market.CollateralRatio, "CIL_MARKET_COLLATERAL_RATIO")

	setStr(&cfg.Escrow.Custody, "CIL_ESCROW_CUSTODY")
	setDecimal(&cfg.Escrow.FeeRate, "CIL_ESCROW_FEE_RATE")
	setDuration(&cfg.Escrow.LockPeriod, "CIL_ESCROW_LOCK_PERIOD")

	setStr(&cfg.Oracle.FeeSink, "CIL_FEE_SINK")

	setStringSlice(&cfg.Admins, "CIL_ADMINS")
	setStringSlice(&cfg.Assets, "CIL_ASSETS")
	setStr(&cfg.LogLevel, "CIL_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the
// environment variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
