package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"liquidityCore/internal/model"
	"liquidityCore/internal/storage"
)

const (
	feeMethodBps     = "input_fee_bps"
	tvlMethodReserve = "last_sync_reserves"
	tvlMethodNone    = "unavailable"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator folds typed pair events into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         storage.MetricsSink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, sink storage.MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, windows, skipped, failed int

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			skipped++
			continue
		}

		if strings.EqualFold(record.EventName, "PairCreated") {
			pool, err := a.registerCreated(record)
			if err != nil {
				failed++
				a.logger.Warn("pair created", zap.Error(err), zap.Uint64("seq", record.BlockNumber))
				continue
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			continue
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				windows++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			next := NewAccumulator(record, windowStart, windowEnd)
			// reserves carry over between windows of the same pool
			if acc.Reserve0 != nil && acc.Reserve1 != nil {
				next.Reserve0, next.Reserve1 = acc.Reserve0, acc.Reserve1
			}
			acc = next
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			windows++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState stores the last timestamp whose windows are all closed.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	poolMeta := acc.PoolMeta
	if poolMeta.Token0 == "" || poolMeta.Token1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	var tvl0Str, tvl1Str *string
	tvlMethod := tvlMethodNone
	if acc.Reserve0 != nil && acc.Reserve1 != nil {
		val0 := acc.Reserve0.String()
		val1 := acc.Reserve1.String()
		tvl0Str, tvl1Str = &val0, &val1
		tvlMethod = tvlMethodReserve
	}

	rate0, rate1 := computeFeeRates(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1)
	feeRate0, feeRate1 := formatRatio(rate0), formatRatio(rate1)
	apr := formatRatio(computeAPR(rate0, rate1, a.cfg.WindowSeconds))

	metrics := &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		MintCount:      acc.MintCount,
		BurnCount:      acc.BurnCount,
		Volume0:        acc.Volume0.String(),
		Volume1:        acc.Volume1.String(),
		Fee0:           acc.Fee0.String(),
		Fee1:           acc.Fee1.String(),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		TVL0:           tvl0Str,
		TVL1:           tvl1Str,
		APR:            apr,
		FeeMethod:      feeMethodBps,
		TVLMethod:      tvlMethod,
	}

	return metrics, poolRecord
}

// registerCreated records a pool from its PairCreated event, which is
// emitted by the registry rather than the pair.
func (a *Aggregator) registerCreated(record model.TypedEventRecord) (*model.Pool, error) {
	var created model.PairCreatedEventData
	if err := record.Payload(&created); err != nil {
		return nil, err
	}
	if created.Pair == "" {
		return nil, fmt.Errorf("pair created without pair address")
	}
	index, err := strconv.ParseUint(created.Index, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pair index: %w", err)
	}

	pool := model.Pool{
		ChainID:        record.ChainID,
		Address:        created.Pair,
		Token0:         created.Token0,
		Token1:         created.Token1,
		FeeBps:         created.FeeBps,
		CreatedIndex:   index,
		FirstSeenBlock: record.BlockNumber,
	}
	a.poolSeen[poolKey(created.Pair)] = pool
	return &pool, nil
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	if _, ok := a.poolSeen[key]; ok {
		return nil
	}

	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		Token0:         acc.PoolMeta.Token0,
		Token1:         acc.PoolMeta.Token1,
		FeeBps:         acc.PoolMeta.FeeBps,
		FirstSeenBlock: acc.FirstBlock,
	}
	a.poolSeen[key] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
