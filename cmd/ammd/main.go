package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammd",
		Short:        "Constant-product exchange core",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply an operation script through the router and record pair logs",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("out", "./data/logs.jsonl", "output pair logs JSONL")
	replayCmd.Flags().String("pools", "./data/pools.jsonl", "output pools JSONL")
	replayCmd.Flags().String("snapshots", "./data/snapshots.jsonl", "output reserve snapshots JSONL")
	replayCmd.Flags().String("errors", "./data/operation_errors.jsonl", "rejected operations JSONL")
	replayCmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Uint64("batch-size", 500, "operations per batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum storage retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().Uint64("chain-id", 1337, "chain id stamped on recorded logs")
	replayCmd.Flags().Uint64("fee-bps", 30, "swap fee in basis points")
	replayCmd.Flags().Uint64("minimum-liquidity", 0, "shares locked on the first mint of a pool")
	replayCmd.Flags().String("registry", "", "registry address pools are derived from")
	replayCmd.Flags().String("genesis", "", "starting clock (unix seconds or RFC3339)")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN; replaces the JSONL outputs when set")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode pair logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input pair logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("pools", "", "pools JSONL used to seed pool metadata")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN; replaces the JSONL outputs when set")
	aggregateCmd.Flags().String("metrics", "./data/window_metrics.jsonl", "output window metrics JSONL")
	aggregateCmd.Flags().String("pools", "", "output pools JSONL")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a multi-hop swap against given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().StringSlice("reserves", nil, "per-hop reserves as reserveIn:reserveOut (comma-separated)")
	quoteCmd.Flags().String("amount-in", "", "exact input amount")
	quoteCmd.Flags().String("amount-out", "", "exact output amount")
	quoteCmd.Flags().Uint64("fee-bps", 30, "swap fee in basis points")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
