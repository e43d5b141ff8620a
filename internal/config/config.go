// Package config defines the engine's top-level configuration and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by CIL_* environment
// variables. Rates and prices decode into decimal.Decimal straight from
// their TOML string form — never float64 for money.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Staking StakingConfig `toml:"staking"`
	Market  MarketConfig  `toml:"market"`
	Escrow  EscrowConfig  `toml:"escrow"`
	Oracle  OracleConfig  `toml:"oracle"`

	// Admins are the accounts allowed to run force actions and
	// whitelist changes.
	Admins []string `toml:"admins"`

	// Assets are whitelisted for trading and escrow at startup. The
	// native and protocol assets are always allowed regardless.
	Assets []string `toml:"assets"`

	LogLevel string `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `toml:"backend"`
	PostgresDSN string `toml:"postgres_dsn"`

	// RedisAddr, when set, layers a read-through cache over the backend.
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	CacheTTL      duration `toml:"cache_ttl"`
}

// StakingConfig holds the staking ledger parameters.
type StakingConfig struct {
	Asset          string   `toml:"asset"`
	Custody        string   `toml:"custody"`
	LockPeriod     duration `toml:"lock_period"`
	WeightExponent int      `toml:"weight_exponent"`
}

// MarketConfig holds the marketplace parameters.
type MarketConfig struct {
	NativeAsset     string          `toml:"native_asset"`
	Custody         string          `toml:"custody"`
	FeeRate         decimal.Decimal `toml:"fee_rate"`
	CollateralRatio decimal.Decimal `toml:"collateral_ratio"`
}

// EscrowConfig holds the conditional escrow parameters.
type EscrowConfig struct {
	Custody    string          `toml:"custody"`
	FeeRate    decimal.Decimal `toml:"fee_rate"`
	LockPeriod duration        `toml:"lock_period"`
}

// OracleConfig seeds the static price oracle.
type OracleConfig struct {
	// FeeSink receives settlement fees and confiscated balances across
	// all subsystems.
	FeeSink string `toml:"fee_sink"`

	// Prices maps asset symbol to unit price.
	Prices map[string]decimal.Decimal `toml:"prices"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "168h", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: duration{10 * time.Second},
		},
		Store: StoreConfig{
			Backend:  "memory",
			CacheTTL: duration{time.Minute},
		},
		Staking: StakingConfig{
			Asset:          "CIL",
			Custody:        "staking-custody",
			LockPeriod:     duration{7 * 24 * time.Hour},
			WeightExponent: 1,
		},
		Market: MarketConfig{
			NativeAsset:     "NATIVE",
			Custody:         "market-custody",
			FeeRate:         decimal.NewFromFloat(0.01),
			CollateralRatio: decimal.NewFromInt(3),
		},
		Escrow: EscrowConfig{
			Custody:    "escrow-custody",
			FeeRate:    decimal.NewFromFloat(0.01),
			LockPeriod: duration{7 * 24 * time.Hour},
		},
		Oracle: OracleConfig{
			FeeSink: "fee-sink",
			Prices:  map[string]decimal.Decimal{},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, "store: postgres_dsn is required for backend postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend))
	}

	if c.Staking.Asset == "" {
		errs = append(errs, "staking: asset must not be empty")
	}
	if c.Staking.LockPeriod.Duration < 0 {
		errs = append(errs, "staking: lock_period must not be negative")
	}
	if c.Staking.WeightExponent < 1 {
		errs = append(errs, "staking: weight_exponent must be at least 1")
	}

	if c.Market.FeeRate.IsNegative() || c.Market.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "market: fee_rate must be in [0, 1)")
	}
	if !c.Market.CollateralRatio.IsPositive() {
		errs = append(errs, "market: collateral_ratio must be positive")
	}

	if c.Escrow.FeeRate.IsNegative() || c.Escrow.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "escrow: fee_rate must be in [0, 1)")
	}
	if c.Escrow.LockPeriod.Duration < 0 {
		errs = append(errs, "escrow: lock_period must not be negative")
	}

	for asset, price := range c.Oracle.Prices {
		if !price.IsPositive() {
			errs = append(errs, fmt.Sprintf("oracle: price for %s must be positive", asset))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
