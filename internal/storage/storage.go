package storage

import (
	"context"

	"liquidityCore/internal/model"
)

// Storage is the sink the replay runner writes to.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertReserveSnapshots(ctx context.Context, snapshots []model.ReserveSnapshot) error
}

// MetricsSink receives aggregated window metrics.
type MetricsSink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}
