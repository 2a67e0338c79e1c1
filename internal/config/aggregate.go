package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Input         string
	Window        string
	PGDSN         string
	Metrics       string
	Pools         string
	BatchSize     int
	StateFile     string
	RecomputeFrom string
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "5m",
		"metrics":    "./data/window_metrics.jsonl",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	return AggregateConfig{
		Input:         v.GetString("in"),
		Window:        v.GetString("window"),
		PGDSN:         v.GetString("pg-dsn"),
		Metrics:       v.GetString("metrics"),
		Pools:         v.GetString("pools"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: v.GetString("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
