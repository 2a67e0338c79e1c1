package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/aggregate"
	"liquidityCore/internal/config"
	"liquidityCore/internal/storage"
	"liquidityCore/internal/storage/postgres"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" && cfg.Metrics == "" {
		return fmt.Errorf("pg dsn or metrics path is required")
	}

	windowSeconds, err := parseWindow(cfg.Window)
	if err != nil {
		return err
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sink       storage.MetricsSink
		stateStore aggregate.StateStore
	)
	stateName := aggregate.StateName(windowSeconds)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = store
		stateStore = &aggregate.DBStateStore{Store: store, Name: stateName}
	} else {
		sink = storage.NewJsonlStorage(storage.JsonlPaths{
			Pools:   cfg.Pools,
			Metrics: cfg.Metrics,
		})
	}
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile, Name: stateName}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, sink, logger)

	logger.Info("aggregate start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("metrics", cfg.Metrics),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
	)

	return agg.Run(ctx, cfg.Input)
}

func parseWindow(window string) (uint64, error) {
	windowDuration, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if windowDuration <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	windowSeconds := uint64(windowDuration.Seconds())
	if windowSeconds == 0 {
		return 0, fmt.Errorf("window must be at least 1s")
	}
	return windowSeconds, nil
}
