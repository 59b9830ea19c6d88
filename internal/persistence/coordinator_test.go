package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rdnode/rdnode/internal/aof"
	"github.com/rdnode/rdnode/internal/rdb"
	"github.com/rdnode/rdnode/internal/store"
)

func newTestCoordinator(t *testing.T, points []SavePoint) (*Coordinator, *store.Engine) {
	t.Helper()
	dir := t.TempDir()

	engine := store.NewEngine(nil, 0)
	w, err := aof.Open(filepath.Join(dir, "appendonly.aof"), aof.Never, nil)
	if err != nil {
		t.Fatalf("aof.Open: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	c := New(nil, engine, w, filepath.Join(dir, "dump.rdb"), points)
	return c, engine
}

func TestManualSnapshotWritesFile(t *testing.T) {
	c, engine := newTestCoordinator(t, nil)
	engine.Set("k", []byte("v"), store.SetOptions{})

	if err := c.ManualSnapshot(); err != nil {
		t.Fatalf("ManualSnapshot: %v", err)
	}

	got, err := rdb.Load(c.rdbPath, nil)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(got) != 1 || got[0].Key != "k" {
		t.Fatalf("snapshot entries = %+v", got)
	}
}

func TestSchedulerTriggersOnceWriteCountSatisfied(t *testing.T) {
	c, engine := newTestCoordinator(t, []SavePoint{{Seconds: 0, Writes: 3}})
	c.Start()
	defer c.Close()

	engine.Set("a", []byte("1"), store.SetOptions{})
	c.RecordWrite()
	engine.Set("b", []byte("2"), store.SetOptions{})
	c.RecordWrite()
	engine.Set("c", []byte("3"), store.SetOptions{})
	c.RecordWrite()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.dirty.Load() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.dirty.Load() != 0 {
		t.Fatalf("expected snapshot to reset dirty counter, still at %d", c.dirty.Load())
	}

	got, err := rdb.Load(c.rdbPath, nil)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("snapshot entries = %d, want 3", len(got))
	}
}

func TestRecoverMissingFilesReturnsNils(t *testing.T) {
	dir := t.TempDir()
	entries, cmds, err := Recover(filepath.Join(dir, "dump.rdb"), filepath.Join(dir, "appendonly.aof"), nil)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if entries != nil || cmds != nil {
		t.Fatalf("expected nils for a fresh node, got entries=%v cmds=%v", entries, cmds)
	}
}
