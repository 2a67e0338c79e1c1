package config

import (
	"strings"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	Reserves  []string
	AmountIn  string
	AmountOut string
	FeeBps    uint64
	LogLevel  string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"fee-bps":   uint64(30),
		"log-level": "warn",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Reserves:  getStringSlice(v, "reserves"),
		AmountIn:  strings.TrimSpace(v.GetString("amount-in")),
		AmountOut: strings.TrimSpace(v.GetString("amount-out")),
		FeeBps:    v.GetUint64("fee-bps"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
