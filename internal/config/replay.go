package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	In                string
	Out               string
	Pools             string
	Snapshots         string
	Errors            string
	Checkpoint        string
	CheckpointEnabled bool
	BatchSize         uint64
	MaxRetries        int
	RetryBackoff      time.Duration
	ChainID           uint64
	FeeBps            uint64
	MinimumLiquidity  uint64
	Registry          string
	Genesis           string
	PGDSN             string
	LogLevel          string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":                "./data/logs.jsonl",
		"pools":              "./data/pools.jsonl",
		"snapshots":          "./data/snapshots.jsonl",
		"errors":             "./data/operation_errors.jsonl",
		"checkpoint":         "./data/replay_checkpoint.json",
		"checkpoint-enabled": true,
		"batch-size":         uint64(500),
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"chain-id":           uint64(1337),
		"fee-bps":            uint64(30),
		"log-level":          "info",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	return ReplayConfig{
		In:                v.GetString("in"),
		Out:               v.GetString("out"),
		Pools:             v.GetString("pools"),
		Snapshots:         v.GetString("snapshots"),
		Errors:            v.GetString("errors"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchSize:         v.GetUint64("batch-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		ChainID:           v.GetUint64("chain-id"),
		FeeBps:            v.GetUint64("fee-bps"),
		MinimumLiquidity:  v.GetUint64("minimum-liquidity"),
		Registry:          v.GetString("registry"),
		Genesis:           v.GetString("genesis"),
		PGDSN:             v.GetString("pg-dsn"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
