package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityCore/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for logs, pools, snapshots and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts log records, ignoring ones already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO pair_logs (
				chain_id, block_number, log_index, block_hash, tx_hash, address, topics, data, ts, ingested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (chain_id, block_number, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			int64(log.LogIndex),
			log.BlockHash,
			log.TxHash,
			log.Address,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(logs))
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, fee_bps, created_index, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee_bps = EXCLUDED.fee_bps,
				created_index = EXCLUDED.created_index,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token0,
			pool.Token1,
			int32(pool.FeeBps),
			int64(pool.CreatedIndex),
			int64(pool.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertReserveSnapshots inserts or updates per-sequence pool reserves.
func (s *Store) UpsertReserveSnapshots(ctx context.Context, snapshots []model.ReserveSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO reserve_snapshots (
				chain_id, pool_address, seq, reserve0, reserve1, total_shares, ts, updated_at
			) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, now())
			ON CONFLICT (chain_id, pool_address, seq)
			DO UPDATE SET
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				total_shares = EXCLUDED.total_shares,
				ts = EXCLUDED.ts,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.PoolAddress,
			int64(snap.Seq),
			snap.Reserve0,
			snap.Reserve1,
			snap.TotalShares,
			int64(snap.Timestamp),
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, mint_count, burn_count, volume0, volume1, fee0, fee1,
				fee_rate0, fee_rate1, tvl0, tvl1, apr, fee_method, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11::numeric,$12::numeric,
				$13::numeric,$14::numeric,$15::numeric,$16::numeric,$17::numeric,$18,$19,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				mint_count = EXCLUDED.mint_count,
				burn_count = EXCLUDED.burn_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				tvl0 = EXCLUDED.tvl0,
				tvl1 = EXCLUDED.tvl1,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.MintCount),
			int64(m.BurnCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.FeeRate0,
			m.FeeRate1,
			m.TVL0,
			m.TVL1,
			m.APR,
			m.FeeMethod,
			m.TVLMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
