// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Triggers a sync pass when local mutations are committed (debounced)
// 2. Runs a periodic full sync as a safety net
// 3. Pushes queued changes as soon as connectivity returns
// 4. Imports attachment files dropped into a watched directory
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/sync"
	"github.com/wanderlog/wandersync/internal/trip"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a full sync runs regardless of local
	// activity. Catches remote-only changes.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a local mutation before
	// triggering a sync. This batches rapid edits together.
	DebounceInterval time.Duration

	// ImportDir, when set, is watched for dropped attachment files named
	// <trip-id>__<filename>. Empty disables the watcher.
	ImportDir string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Engine is the slice of the sync engine the daemon drives.
type Engine interface {
	PerformSync(ctx context.Context) error
	ProcessPendingChanges(ctx context.Context) error
}

// Daemon orchestrates mutation-driven, periodic, and reconnect-driven
// sync passes.
type Daemon struct {
	store   *store.Store
	engine  Engine
	monitor *sync.NetworkMonitor
	config  *Config

	watcher *fsnotify.Watcher

	dirtyMu    stdsync.Mutex
	dirtySince time.Time // zero when no unsynced local mutation is queued

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a Daemon. Use Start() to begin running.
func New(st *store.Store, engine Engine, monitor *sync.NetworkMonitor, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if monitor == nil {
		monitor = sync.NewNetworkMonitor(sync.StatusOnline)
	}
	if config == nil {
		config = DefaultConfig()
	}

	var watcher *fsnotify.Watcher
	if config.ImportDir != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		watcher = w
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:   st,
		engine:  engine,
		monitor: monitor,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an initial sync to flush changes queued while it was down
// 2. Trigger debounced syncs on committed local mutations
// 3. Run a periodic full sync
// 4. Push the pending queue when connectivity returns
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Flush anything queued before the daemon came up. Failure is not
	// fatal: the periodic sync retries.
	if err := d.engine.PerformSync(d.ctx); err != nil {
		d.config.Logger.Printf("Initial sync failed: %v", err)
	}

	d.store.Subscribe(func(e store.Event) {
		d.markDirty()
	})

	d.monitor.Subscribe(func(status sync.NetworkStatus) {
		if status != sync.StatusOnline {
			return
		}
		d.config.Logger.Println("Connectivity restored, pushing pending changes")
		go func() {
			if err := d.engine.ProcessPendingChanges(d.ctx); err != nil {
				d.config.Logger.Printf("Reconnect push failed: %v", err)
			}
		}()
	})

	if d.watcher != nil {
		if err := os.MkdirAll(d.config.ImportDir, 0755); err != nil {
			return fmt.Errorf("failed to create import directory: %w", err)
		}
		if err := d.watcher.Add(d.config.ImportDir); err != nil {
			return fmt.Errorf("failed to watch import directory: %w", err)
		}
		d.config.Logger.Printf("Watching: %s", d.config.ImportDir)

		d.wg.Add(1)
		go d.watchImportDir()
	}

	d.wg.Add(2)
	go d.debounceLoop()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// markDirty records that a local mutation committed. The debounce loop
// picks it up once the edit burst settles.
func (d *Daemon) markDirty() {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	d.dirtySince = time.Now()
}

// takeDirtyIfSettled clears and reports the dirty flag when the last
// mutation is older than the debounce interval.
func (d *Daemon) takeDirtyIfSettled() bool {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	if d.dirtySince.IsZero() {
		return false
	}
	if time.Since(d.dirtySince) < d.config.DebounceInterval {
		return false
	}
	d.dirtySince = time.Time{}
	return true
}

// debounceLoop triggers a sync after local mutations settle.
func (d *Daemon) debounceLoop() {
	defer d.wg.Done()

	interval := d.config.DebounceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.takeDirtyIfSettled() {
				continue
			}
			if err := d.engine.PerformSync(d.ctx); err != nil {
				d.config.Logger.Printf("Change-triggered sync failed: %v", err)
			}
		}
	}
}

// periodicSync runs a full sync at the configured interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	interval := d.config.SyncInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.engine.PerformSync(d.ctx); err != nil {
				d.config.Logger.Printf("Periodic sync failed: %v", err)
			}
		}
	}
}

// watchImportDir monitors the import directory for dropped attachments.
func (d *Daemon) watchImportDir() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			if err := d.importAttachment(event.Name); err != nil {
				d.config.Logger.Printf("Error importing %s: %v", event.Name, err)
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// importAttachment registers a dropped file as an attachment. Files are
// named <trip-id>__<filename>; anything else is skipped.
func (d *Daemon) importAttachment(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}

	tripID, filename, ok := parseImportName(filepath.Base(path))
	if !ok {
		d.config.Logger.Printf("Skipping %s: not a <trip-id>__<filename> import", path)
		return nil
	}

	a := &trip.Attachment{
		ID:        uuid.NewString(),
		TripID:    tripID,
		Filename:  filename,
		Path:      path,
		SizeBytes: info.Size(),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.AddAttachment(d.ctx, a, uuid.NewString()); err != nil {
		return fmt.Errorf("failed to record attachment: %w", err)
	}

	d.config.Logger.Printf("Imported attachment %s for trip %s", filename, tripID)
	return nil
}

// parseImportName splits "<trip-id>__<filename>" into its parts.
func parseImportName(name string) (tripID, filename string, ok bool) {
	tripID, filename, ok = strings.Cut(name, "__")
	if !ok || tripID == "" || filename == "" {
		return "", "", false
	}
	return tripID, filename, true
}
