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

	"liquidityCore/internal/amm"
	"liquidityCore/internal/config"
	"liquidityCore/internal/events"
	"liquidityCore/internal/replay"
	"liquidityCore/internal/storage"
	"liquidityCore/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ammCfg := amm.DefaultConfig()
	ammCfg.FeeBps = cfg.FeeBps
	ammCfg.MinimumLiquidity = cfg.MinimumLiquidity
	if cfg.Registry != "" {
		ammCfg.Address, err = replay.ParseAddress("registry", cfg.Registry)
		if err != nil {
			return err
		}
	}
	if err := ammCfg.Validate(); err != nil {
		return err
	}

	genesisTs, err := config.ParseTimestamp(cfg.Genesis)
	if err != nil {
		return fmt.Errorf("parse genesis: %w", err)
	}

	ops, err := replay.ReadOperations(cfg.In)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var storageSink storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		storageSink = store
	} else {
		if cfg.Out == "" {
			return fmt.Errorf("output path is required")
		}
		storageSink = storage.NewJsonlStorage(storage.JsonlPaths{
			Logs:      cfg.Out,
			Pools:     cfg.Pools,
			Snapshots: cfg.Snapshots,
		})
	}

	// a resumed run keeps the rejections already written
	errWriter, err := storage.NewJSONLWriter(cfg.Errors, cfg.CheckpointEnabled)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	recorder, err := events.NewRecorder(cfg.ChainID, logger)
	if err != nil {
		return err
	}
	ammCfg.Sink = recorder

	engine, err := replay.NewEngine(ammCfg, time.Unix(int64(genesisTs), 0).UTC(), logger)
	if err != nil {
		return err
	}

	runner := replay.NewRunner(replay.RunConfig{
		ChainID:           cfg.ChainID,
		Source:            cfg.In,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, engine, recorder, storageSink, errWriter, logger)

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.Int("operations", len(ops)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Uint64("fee_bps", cfg.FeeBps),
		zap.Uint64("minimum_liquidity", cfg.MinimumLiquidity),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	summary, err := runner.Run(ctx, ops)
	if err != nil {
		return err
	}

	logger.Info("replay complete",
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("skipped", summary.Skipped),
		zap.Int("logs", summary.Logs),
		zap.Int("pools", engine.Registry().Len()),
	)
	return nil
}
