package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/sync"
	"github.com/wanderlog/wandersync/internal/trip"
)

// countingEngine records how each sync entry point is driven.
type countingEngine struct {
	mu     stdsync.Mutex
	syncs  int
	pushes int
}

func (e *countingEngine) PerformSync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncs++
	return nil
}

func (e *countingEngine) ProcessPendingChanges(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushes++
	return nil
}

func (e *countingEngine) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncs, e.pushes
}

func testConfig(importDir string) *Config {
	return &Config{
		SyncInterval:     time.Hour, // keep the periodic path out of the way
		DebounceInterval: 10 * time.Millisecond,
		ImportDir:        importDir,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func setupDaemon(t *testing.T, monitor *sync.NetworkMonitor, importDir string) (*store.Store, *countingEngine, func()) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "wandersync.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engine := &countingEngine{}
	d, err := New(st, engine, monitor, testConfig(importDir))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Start(ctx)
	}()

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not shut down")
		}
	}
	return st, engine, stop
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sampleTrip(id string) *trip.Trip {
	now := time.Now().UTC()
	return &trip.Trip{ID: id, Title: "Lisbon", CreatedAt: now, UpdatedAt: now}
}

func TestDaemonSyncsOnLocalMutation(t *testing.T) {
	st, engine, stop := setupDaemon(t, nil, "")
	defer stop()

	// Initial sync on startup.
	waitFor(t, "initial sync", func() bool {
		syncs, _ := engine.counts()
		return syncs >= 1
	})

	if err := st.UpsertTrip(context.Background(), sampleTrip("trip-1"), "chg-1"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "change-triggered sync", func() bool {
		syncs, _ := engine.counts()
		return syncs >= 2
	})
}

func TestDaemonPushesOnReconnect(t *testing.T) {
	monitor := sync.NewNetworkMonitor(sync.StatusOffline)
	_, engine, stop := setupDaemon(t, monitor, "")
	defer stop()

	waitFor(t, "initial sync", func() bool {
		syncs, _ := engine.counts()
		return syncs >= 1
	})

	monitor.SetStatus(sync.StatusOnline)

	waitFor(t, "reconnect push", func() bool {
		_, pushes := engine.counts()
		return pushes >= 1
	})
}

func TestDaemonImportsAttachment(t *testing.T) {
	importDir := filepath.Join(t.TempDir(), "imports")
	st, _, stop := setupDaemon(t, nil, importDir)
	defer stop()

	ctx := context.Background()
	if err := st.UpsertTrip(ctx, sampleTrip("trip-1"), "chg-1"); err != nil {
		t.Fatal(err)
	}

	// Start() creates the import directory before watching it.
	waitFor(t, "import directory", func() bool {
		_, err := os.Stat(importDir)
		return err == nil
	})

	path := filepath.Join(importDir, "trip-1__boarding-pass.pdf")
	if err := os.WriteFile(path, []byte("pdf bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "attachment import", func() bool {
		list, err := st.ListAttachments(ctx, "trip-1")
		return err == nil && len(list) == 1
	})

	list, err := st.ListAttachments(ctx, "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Filename != "boarding-pass.pdf" || list[0].SizeBytes != int64(len("pdf bytes")) {
		t.Errorf("imported attachment = %+v", list[0])
	}
}

func TestParseImportName(t *testing.T) {
	tests := []struct {
		name     string
		tripID   string
		filename string
		ok       bool
	}{
		{"trip-1__photo.jpg", "trip-1", "photo.jpg", true},
		{"trip-1__notes__v2.txt", "trip-1", "notes__v2.txt", true},
		{"photo.jpg", "", "", false},
		{"__photo.jpg", "", "", false},
		{"trip-1__", "", "", false},
	}

	for _, tt := range tests {
		tripID, filename, ok := parseImportName(tt.name)
		if tripID != tt.tripID || filename != tt.filename || ok != tt.ok {
			t.Errorf("parseImportName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, tripID, filename, ok, tt.tripID, tt.filename, tt.ok)
		}
	}
}
