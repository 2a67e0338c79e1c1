package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	store := NewCheckpointStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected no checkpoint, ok=%v err=%v", ok, err)
	}
	if err := store.Save("ops.jsonl", 42); err != nil {
		t.Fatalf("save: %v", err)
	}
	cp, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if cp.LastAppliedSeq != 42 || cp.Source != "ops.jsonl" {
		t.Fatalf("checkpoint mismatch: %+v", cp)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind")
	}
}

func TestCheckpointStoreDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, false)
	if err := store.Save("ops.jsonl", 1); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("disabled store wrote a file")
	}
}
