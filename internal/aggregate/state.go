package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateStore persists the last processed timestamp.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore stores state in a local JSON file. Several aggregators
// can share one file under different names.
type FileStateStore struct {
	Path string
	Name string
}

type stateRecord struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	records, err := s.read()
	if err != nil {
		return 0, false, err
	}
	rec, ok := records[s.key()]
	if !ok {
		return 0, false, nil
	}
	return rec.LastProcessed, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	records, err := s.read()
	if err != nil {
		return err
	}
	records[s.key()] = stateRecord{
		LastProcessed: ts,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

func (s *FileStateStore) key() string {
	if s.Name == "" {
		return "aggregate"
	}
	return s.Name
}

func (s *FileStateStore) read() (map[string]stateRecord, error) {
	records := make(map[string]stateRecord)
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return records, nil
}
