package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
log_level = "debug"
admins = ["ops"]
assets = ["TOK", "USD"]

[server]
addr = ":9090"

[staking]
asset = "STK"
lock_period = "24h"

[market]
fee_rate = "0.02"
collateral_ratio = "5"

[oracle]
fee_sink = "treasury"
[oracle.prices]
TOK = "1.5"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Staking.Asset != "STK" || cfg.Staking.LockPeriod.Duration != 24*time.Hour {
		t.Fatalf("staking = %+v", cfg.Staking)
	}
	if !cfg.Market.FeeRate.Equal(decimal.NewFromFloat(0.02)) {
		t.Fatalf("fee rate = %s, want 0.02", cfg.Market.FeeRate)
	}
	if !cfg.Oracle.Prices["TOK"].Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("oracle price = %s, want 1.5", cfg.Oracle.Prices["TOK"])
	}
	// Untouched sections keep their defaults.
	if cfg.Escrow.Custody != "escrow-custody" {
		t.Fatalf("escrow custody = %q, want default", cfg.Escrow.Custody)
	}
}

func TestLoad_EnvOverridesTOML(t *testing.T) {
	t.Setenv("CIL_SERVER_ADDR", ":7070")
	t.Setenv("CIL_MARKET_FEE_RATE", "0.005")
	t.Setenv("CIL_STAKING_LOCK_PERIOD", "48h")
	t.Setenv("CIL_ADMINS", "ops, root")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr = %q, want :7070", cfg.Server.Addr)
	}
	if !cfg.Market.FeeRate.Equal(decimal.NewFromFloat(0.005)) {
		t.Fatalf("fee rate = %s, want 0.005", cfg.Market.FeeRate)
	}
	if cfg.Staking.LockPeriod.Duration != 48*time.Hour {
		t.Fatalf("lock period = %s, want 48h", cfg.Staking.LockPeriod)
	}
	if len(cfg.Admins) != 2 || cfg.Admins[0] != "ops" || cfg.Admins[1] != "root" {
		t.Fatalf("admins = %v", cfg.Admins)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Store.Backend = "postgres" // DSN missing
	cfg.Market.FeeRate = decimal.NewFromInt(2)
	cfg.Staking.WeightExponent = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "postgres_dsn", "fee_rate", "weight_exponent"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
