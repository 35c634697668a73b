package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ChainID       uint64
	SignerAddress string
	FeeRatio      *big.Int
	FeeSink       string
	Escrow        string
	ListenAddr    string
	Out           string
	PgDSN         string
	SinkRetries   int
	SinkBackoff   time.Duration
	LogLevel      string
}

// defaultFeeRatio is 2.5% at 1e18 scale.
const defaultFeeRatio = "25000000000000000"

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUCTIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("fee-ratio", defaultFeeRatio)
	v.SetDefault("listen", ":8080")
	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("sink-retries", 5)
	v.SetDefault("sink-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	feeRatio, ok := new(big.Int).SetString(v.GetString("fee-ratio"), 10)
	if !ok {
		return Config{}, fmt.Errorf("parse fee-ratio %q", v.GetString("fee-ratio"))
	}
	if feeRatio.Sign() < 0 {
		return Config{}, fmt.Errorf("fee-ratio must not be negative")
	}

	cfg := Config{
		ChainID:       v.GetUint64("chain-id"),
		SignerAddress: v.GetString("signer"),
		FeeRatio:      feeRatio,
		FeeSink:       v.GetString("fee-sink"),
		Escrow:        v.GetString("escrow"),
		ListenAddr:    v.GetString("listen"),
		Out:           v.GetString("out"),
		PgDSN:         v.GetString("pg-dsn"),
		SinkRetries:   v.GetInt("sink-retries"),
		SinkBackoff:   v.GetDuration("sink-backoff"),
		LogLevel:      v.GetString("log-level"),
	}
	return cfg, nil
}
