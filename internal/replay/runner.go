package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"liquidityCore/internal/events"
	"liquidityCore/internal/model"
	"liquidityCore/internal/storage"
)

// RunConfig holds runtime settings for the replay runner.
type RunConfig struct {
	ChainID           uint64
	Source            string
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// ErrorSink receives operations rejected by the core.
type ErrorSink interface {
	Write(value interface{}) error
}

// Runner applies an operation script through an Engine in batches and
// writes the emitted logs, new pools and reserve snapshots to storage.
type Runner struct {
	cfg        RunConfig
	engine     *Engine
	recorder   *events.Recorder
	storage    storage.Storage
	errors     ErrorSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
	pools      int
}

// NewRunner builds a Runner. The recorder must be the engine registry's sink.
func NewRunner(cfg RunConfig, engine *Engine, recorder *events.Recorder, storageSink storage.Storage, errSink ErrorSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		engine:     engine,
		recorder:   recorder,
		storage:    storageSink,
		errors:     errSink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Summary counts what a run did.
type Summary struct {
	Applied  int
	Rejected int
	Skipped  int
	Logs     int
}

// Run applies ops. Operation i has sequence number i+1. Operations at or
// below the checkpoint are re-applied with events muted to rebuild state.
func (r *Runner) Run(ctx context.Context, ops []model.Operation) (Summary, error) {
	var summary Summary
	if r.engine == nil {
		return summary, fmt.Errorf("engine is nil")
	}
	if r.recorder == nil {
		return summary, fmt.Errorf("recorder is nil")
	}
	if r.storage == nil {
		return summary, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if len(ops) == 0 {
		r.logger.Info("nothing to replay")
		return summary, nil
	}

	resumeAfter, err := r.loadResume(uint64(len(ops)))
	if err != nil {
		return summary, err
	}
	if resumeAfter > 0 {
		r.recorder.SetMuted(true)
		for i := uint64(0); i < resumeAfter; i++ {
			if err := r.engine.Apply(ops[i]); err != nil {
				r.logger.Debug("fast-forward rejected op", zap.Uint64("seq", i+1), zap.Error(err))
			}
			summary.Skipped++
		}
		r.recorder.SetMuted(false)
		r.pools = r.engine.Registry().Len()
		if _, err := r.recorder.Drain(); err != nil {
			return summary, fmt.Errorf("fast-forward: %w", err)
		}
		r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", resumeAfter))
	}

	if resumeAfter == uint64(len(ops)) {
		r.logger.Info("nothing to replay", zap.Uint64("last_applied", resumeAfter))
		return summary, nil
	}

	ranges, err := SplitRange(resumeAfter+1, uint64(len(ops)), r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, batch := range ranges {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		for seq := batch.From; seq <= batch.To; seq++ {
			op := ops[seq-1]
			r.recorder.Begin(seq, r.opTimestamp(op))
			if err := r.engine.Apply(op); err != nil {
				summary.Rejected++
				r.logger.Debug("op rejected", zap.Uint64("seq", seq), zap.String("op", op.Op), zap.Error(err))
				if r.errors != nil {
					if werr := r.errors.Write(model.OperationError{Seq: seq, Op: op, Error: err.Error()}); werr != nil {
						return summary, fmt.Errorf("write operation error: %w", werr)
					}
				}
				continue
			}
			summary.Applied++
		}

		records, err := r.recorder.Drain()
		if err != nil {
			return summary, fmt.Errorf("record events: %w", err)
		}
		if err := r.flush(ctx, batch, records); err != nil {
			return summary, err
		}
		summary.Logs += len(records)

		if err := r.checkpoint.Save(r.cfg.Source, batch.To); err != nil {
			return summary, err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
	}

	return summary, nil
}

// opTimestamp is the time an operation will execute at.
func (r *Runner) opTimestamp(op model.Operation) uint64 {
	if op.Timestamp != 0 {
		return op.Timestamp
	}
	return uint64(r.engine.Now().Unix())
}

func (r *Runner) loadResume(total uint64) (uint64, error) {
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if cp.Source != r.cfg.Source {
		return 0, fmt.Errorf("checkpoint belongs to %q, not %q", cp.Source, r.cfg.Source)
	}
	if cp.LastAppliedSeq > total {
		return 0, fmt.Errorf("checkpoint seq %d beyond %d operations", cp.LastAppliedSeq, total)
	}
	return cp.LastAppliedSeq, nil
}

func (r *Runner) flush(ctx context.Context, batch SeqRange, records []model.LogRecord) error {
	pools := r.newPools(batch.To, records)
	snapshots := r.snapshots(batch.To)

	onRetry := func(attempt int, err error) {
		r.logger.Warn("storage write failed", zap.Error(err), zap.Int("attempt", attempt), zap.Uint64("from", batch.From), zap.Uint64("to", batch.To))
	}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"store logs", func(ctx context.Context) error { return r.storage.PutLogBatch(ctx, records) }},
		{"store pools", func(ctx context.Context) error { return r.storage.UpsertPools(ctx, pools) }},
		{"store snapshots", func(ctx context.Context) error { return r.storage.UpsertReserveSnapshots(ctx, snapshots) }},
	}
	for _, step := range steps {
		if err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, onRetry, step.fn); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	r.pools += len(pools)
	return nil
}

// newPools returns pools created since the last flush. A pool's first seen
// block is the sequence of its first log, or seq if it logged nothing.
func (r *Runner) newPools(seq uint64, records []model.LogRecord) []model.Pool {
	all := r.engine.Registry().AllPools()
	if len(all) <= r.pools {
		return nil
	}
	firstSeen := make(map[string]uint64)
	for _, record := range records {
		if _, ok := firstSeen[record.Address]; !ok {
			firstSeen[record.Address] = record.BlockNumber
		}
	}
	out := make([]model.Pool, 0, len(all)-r.pools)
	for i, pool := range all[r.pools:] {
		first, ok := firstSeen[pool.Address().Hex()]
		if !ok {
			first = seq
		}
		out = append(out, model.Pool{
			ChainID:        r.cfg.ChainID,
			Address:        pool.Address().Hex(),
			Token0:         pool.Token0().Hex(),
			Token1:         pool.Token1().Hex(),
			FeeBps:         uint16(pool.FeeBps()),
			CreatedIndex:   uint64(r.pools + i + 1),
			FirstSeenBlock: first,
		})
	}
	return out
}

func (r *Runner) snapshots(seq uint64) []model.ReserveSnapshot {
	all := r.engine.Registry().AllPools()
	out := make([]model.ReserveSnapshot, 0, len(all))
	for _, pool := range all {
		state := pool.Snapshot()
		out = append(out, model.ReserveSnapshot{
			ChainID:     r.cfg.ChainID,
			PoolAddress: pool.Address().Hex(),
			Seq:         seq,
			Reserve0:    state.Reserve0.Dec(),
			Reserve1:    state.Reserve1.Dec(),
			TotalShares: state.TotalShares.Dec(),
			Timestamp:   unixOrZero(state.LastUpdated),
		})
	}
	return out
}

func unixOrZero(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
