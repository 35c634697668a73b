package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 1 {
		t.Fatalf("chain id = %d, want 1", cfg.ChainID)
	}
	want, _ := new(big.Int).SetString("25000000000000000", 10)
	if cfg.FeeRatio.Cmp(want) != 0 {
		t.Fatalf("fee ratio = %s, want 2.5%%", cfg.FeeRatio)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if cfg.SinkRetries != 5 || cfg.SinkBackoff != 500*time.Millisecond {
		t.Fatalf("sink retry defaults = %d/%s", cfg.SinkRetries, cfg.SinkBackoff)
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("chain-id", 1, "")
	flags.String("fee-ratio", "25000000000000000", "")
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--chain-id=56", "--fee-ratio=10000000000000000", "--log-level=debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 56 {
		t.Fatalf("chain id = %d, want 56", cfg.ChainID)
	}
	want, _ := new(big.Int).SetString("10000000000000000", 10)
	if cfg.FeeRatio.Cmp(want) != 0 {
		t.Fatalf("fee ratio = %s", cfg.FeeRatio)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadFeeRatio(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("fee-ratio", "", "")
	if err := flags.Parse([]string{"--fee-ratio=2.5%"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := Load("", flags); err == nil {
		t.Fatal("want parse error")
	}
}
