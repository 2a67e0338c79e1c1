package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"liquidityCore/internal/model"
)

// JsonlPaths names the files a JsonlStorage appends to. An empty path
// discards that record kind.
type JsonlPaths struct {
	Logs      string
	Pools     string
	Snapshots string
	Metrics   string
}

// JsonlStorage appends records to JSONL files.
type JsonlStorage struct {
	paths JsonlPaths
	mu    sync.Mutex
}

func NewJsonlStorage(paths JsonlPaths) *JsonlStorage {
	return &JsonlStorage{paths: paths}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	return appendLines(&s.mu, s.paths.Logs, logs)
}

// UpsertPools appends pool records. Readers keep the last line per address.
func (s *JsonlStorage) UpsertPools(_ context.Context, pools []model.Pool) error {
	return appendLines(&s.mu, s.paths.Pools, pools)
}

func (s *JsonlStorage) UpsertReserveSnapshots(_ context.Context, snapshots []model.ReserveSnapshot) error {
	return appendLines(&s.mu, s.paths.Snapshots, snapshots)
}

func (s *JsonlStorage) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	return appendLines(&s.mu, s.paths.Metrics, metrics)
}

func appendLines[T any](mu *sync.Mutex, path string, items []T) error {
	if len(items) == 0 || path == "" {
		return nil
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
