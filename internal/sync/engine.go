package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/wanderlog/wandersync/internal/remote"
	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/trip"
)

// State is the engine's sync state. Owned exclusively by the engine;
// transitions happen only on its coordination path.
type State int

const (
	// StateIdle means no pass is running and the last pass (if any)
	// succeeded.
	StateIdle State = iota

	// StateSyncing means a pass is in flight.
	StateSyncing

	// StateError means the last pass failed; the error is available via
	// SyncError.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// LocalStore is the slice of the persistent store the engine depends on.
// *store.Store satisfies it; tests substitute in-memory fakes.
type LocalStore interface {
	ListPending(ctx context.Context) ([]store.PendingChange, error)
	PendingCount(ctx context.Context) (int, error)
	ClearPending(ctx context.Context, ids []string) error
	GetTrip(ctx context.Context, id string) (*trip.Trip, error)
	ApplyRemote(ctx context.Context, trips []*trip.Trip, deletedIDs []string, dropPendingTripIDs []string) error
	LastSyncAt(ctx context.Context) (time.Time, error)
	SetLastSyncAt(ctx context.Context, t time.Time) error
}

// Engine coordinates synchronization between the local store and the
// remote backend.
//
// The engine is an explicitly constructed, dependency-injected instance;
// each environment (tests, production) builds its own with its own
// configuration. Only one pass runs at a time: triggers arriving while a
// pass is in flight coalesce into a no-op, since the in-flight pass picks
// up newly queued changes on its push step.
type Engine struct {
	store   LocalStore
	backend remote.Backend
	monitor *NetworkMonitor
	cfg     *Config
	logger  *log.Logger

	mu            stdsync.Mutex
	state         State
	syncErr       *Error
	lastSyncDate  time.Time
	lastProgress  Progress
	pendingCount  int
	syncProtected bool
	needFullPull  bool

	cbMu       stdsync.Mutex
	onComplete []func(bool)
	onProgress []func(Progress)
}

// passKind selects which phases of the state machine a pass runs.
type passKind int

const (
	passFull     passKind = iota // pull + resolve + push
	passPullOnly                 // pull + resolve, no push
	passPushOnly                 // push only, no pull
)

// New creates an Engine.
//
// The pending-change queue is durable: its count is reloaded from the
// store on startup so changes queued before a restart are still reported
// and pushed. If logger is nil, a default logger writing to stderr is
// used.
func New(st LocalStore, backend remote.Backend, monitor *NetworkMonitor, cfg *Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if monitor == nil {
		monitor = NewNetworkMonitor(StatusOnline)
	}
	if cfg == nil {
		cfg = ConfigForEnvironment(EnvProduction)
	}

	e := &Engine{
		store:         st,
		backend:       backend,
		monitor:       monitor,
		cfg:           cfg,
		logger:        logger,
		syncProtected: true,
	}

	ctx := context.Background()
	if n, err := st.PendingCount(ctx); err == nil {
		e.pendingCount = n
	} else {
		logger.Printf("Warning: failed to load pending count: %v", err)
	}
	if t, err := st.LastSyncAt(ctx); err == nil {
		e.lastSyncDate = t
	} else {
		logger.Printf("Warning: failed to load last sync time: %v", err)
	}

	return e
}

// ===== Observable properties =====

// State returns the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsSyncing reports whether a pass is in flight.
func (e *Engine) IsSyncing() bool {
	return e.State() == StateSyncing
}

// SyncError returns the error from the last failed pass, or nil when the
// engine is idle or syncing.
func (e *Engine) SyncError() *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncErr
}

// LastSyncDate returns the completion time of the last fully successful
// pass, or the zero time if none has succeeded.
func (e *Engine) LastSyncDate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncDate
}

// PendingChangesCount returns the number of queued pending changes.
func (e *Engine) PendingChangesCount() int {
	n, err := e.store.PendingCount(context.Background())
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return e.pendingCount
	}
	e.pendingCount = n
	return n
}

// NetworkStatus returns the monitor's current status.
func (e *Engine) NetworkStatus() NetworkStatus {
	return e.monitor.Status()
}

// SetNetworkStatus overrides the network status (test/manual override).
func (e *Engine) SetNetworkStatus(status NetworkStatus) {
	e.monitor.SetStatus(status)
}

// SetSyncProtectedTrips controls whether protected trips take part in
// sync. When false, protected records are excluded from both push and
// pull as a pre-filter, not deleted after the fact.
//
// Re-enabling schedules a full re-pull: remote protected records skipped
// while the filter was off sit behind the pull watermark, and only a pull
// from the beginning of time can recover them.
func (e *Engine) SetSyncProtectedTrips(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled && !e.syncProtected {
		e.needFullPull = true
	}
	e.syncProtected = enabled
}

// SyncProtectedTrips reports whether protected trips take part in sync.
func (e *Engine) SyncProtectedTrips() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncProtected
}

// OnSyncComplete registers a callback invoked at the end of every pass
// with the pass outcome. Callbacks run on the pass goroutine.
func (e *Engine) OnSyncComplete(fn func(success bool)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onComplete = append(e.onComplete, fn)
}

// OnSyncProgress registers a callback invoked after every completed
// batch. Callbacks run on the pass goroutine.
func (e *Engine) OnSyncProgress(fn func(Progress)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onProgress = append(e.onProgress, fn)
}

// ===== Operations =====

// PerformSync runs one full pass: pull remote changes, resolve conflicts,
// push pending changes in batches, and report a terminal state.
//
// A call while another pass is in flight coalesces into a no-op and
// returns nil; the in-flight pass picks up any newly queued changes.
func (e *Engine) PerformSync(ctx context.Context) error {
	return e.run(ctx, passFull)
}

// PerformSyncWithRetry wraps a whole pass in the outer sync retry
// configuration, for transient-failure recovery beyond per-batch retry.
func (e *Engine) PerformSyncWithRetry(ctx context.Context) error {
	_, err := RunWithRetry(ctx, e.cfg.Sync, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.run(ctx, passFull)
	})
	return err
}

// SyncAndResolveConflicts forces conflict detection against the remote
// backend even when no push is pending. Pull and resolve only.
func (e *Engine) SyncAndResolveConflicts(ctx context.Context) error {
	return e.run(ctx, passPullOnly)
}

// ProcessPendingChanges runs a push-only pass, used when transitioning
// from offline to online.
func (e *Engine) ProcessPendingChanges(ctx context.Context) error {
	return e.run(ctx, passPushOnly)
}

// SyncWithProgress runs a full pass and returns the final progress
// synchronously, for callers that want a summary rather than a callback
// stream.
func (e *Engine) SyncWithProgress(ctx context.Context) (Progress, error) {
	err := e.run(ctx, passFull)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastProgress, err
}

// TriggerSync starts a pass in the background (fire-and-forget). Safe to
// call at any rate: concurrent triggers coalesce.
func (e *Engine) TriggerSync() {
	go func() {
		_ = e.PerformSync(context.Background())
	}()
}

// TriggerSyncAndWait runs a pass and blocks until it reaches a terminal
// state.
func (e *Engine) TriggerSyncAndWait(ctx context.Context) error {
	return e.PerformSync(ctx)
}

// ===== State machine =====

// run executes one pass through the state machine. It is the only place
// the sync state transitions.
func (e *Engine) run(ctx context.Context, kind passKind) error {
	if !e.beginPass() {
		// Coalesce: the in-flight pass will pick up new pending changes.
		return nil
	}

	err := asSyncError(e.pass(ctx, kind))
	e.finishPass(err)

	if err != nil {
		return err
	}
	return nil
}

// beginPass transitions idle/error -> syncing. Returns false when a pass
// is already in flight.
func (e *Engine) beginPass() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSyncing {
		return false
	}
	e.state = StateSyncing
	e.lastProgress = Progress{}
	return true
}

// finishPass records the terminal state and invokes completion callbacks.
// Pending changes that failed to push stay queued for the next trigger.
func (e *Engine) finishPass(err *Error) {
	e.mu.Lock()
	if err != nil {
		e.state = StateError
		e.syncErr = err
	} else {
		e.state = StateIdle
		e.syncErr = nil
		e.lastSyncDate = time.Now()
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Printf("Sync failed: %v", err)
	}

	e.cbMu.Lock()
	callbacks := make([]func(bool), len(e.onComplete))
	copy(callbacks, e.onComplete)
	e.cbMu.Unlock()

	for _, fn := range callbacks {
		fn(err == nil)
	}
}

// emitProgress records and publishes a progress update.
func (e *Engine) emitProgress(p Progress) {
	e.mu.Lock()
	e.lastProgress = p
	e.mu.Unlock()

	e.cbMu.Lock()
	callbacks := make([]func(Progress), len(e.onProgress))
	copy(callbacks, e.onProgress)
	e.cbMu.Unlock()

	for _, fn := range callbacks {
		fn(p)
	}
}

// pass runs the phases of one pass. All failures are returned; run
// converts them into the terminal error state.
func (e *Engine) pass(ctx context.Context, kind passKind) error {
	// Fail fast while offline: no network I/O is attempted.
	if e.monitor.Status() == StatusOffline {
		return newError(KindNetworkUnavailable, "network is offline", nil)
	}

	pushCfg := e.cfg.Network

	// Probe the account before touching data. noAccount/restricted is
	// unrecoverable without user action; an exhausted quota switches the
	// push retry configuration, since quota resets are time-based.
	status, err := e.backend.AccountStatus(ctx)
	if err != nil {
		e.logger.Printf("Warning: account status probe failed: %v", err)
	} else {
		switch status {
		case remote.StatusNoAccount, remote.StatusRestricted:
			return newError(KindAuthenticationRequired,
				fmt.Sprintf("remote account is %s", status), nil)
		case remote.StatusQuotaExceeded:
			e.logger.Printf("Remote quota exceeded, using quota retry configuration")
			pushCfg = e.cfg.QuotaExceeded
		}
	}

	var resolveFailures int
	if kind != passPushOnly {
		n, err := e.pullAndResolve(ctx)
		if err != nil {
			return err
		}
		resolveFailures = n
	}

	if kind != passPullOnly {
		if err := e.pushPending(ctx, pushCfg); err != nil {
			return err
		}
	}

	if resolveFailures > 0 {
		// The pass pushed what it could; unresolved records stay queued
		// and the last-sync watermark does not advance, so the next pass
		// re-pulls and retries them.
		return newError(KindConflictResolution,
			fmt.Sprintf("%d record(s) could not be resolved", resolveFailures), nil)
	}

	// The persisted watermark is a pull watermark: a push-only pass never
	// pulled, so advancing it here would skip remote changes made since
	// the last real pull.
	if kind != passPushOnly {
		if err := e.store.SetLastSyncAt(ctx, time.Now()); err != nil {
			e.logger.Printf("Warning: failed to persist last sync time: %v", err)
		}
	}

	return nil
}

// pullAndResolve pulls remote changes since the last successful sync,
// detects conflicts against queued local changes, resolves them
// last-writer-wins, and applies the results to the store in one
// transaction. Returns the number of records whose resolution failed;
// those stay unresolved and queued without aborting the rest of the pass.
func (e *Engine) pullAndResolve(ctx context.Context) (int, error) {
	since, err := e.store.LastSyncAt(ctx)
	if err != nil {
		return 0, newError(KindUnknown, "failed to read last sync time", err)
	}

	e.mu.Lock()
	fullPull := e.needFullPull
	e.mu.Unlock()
	if fullPull {
		since = time.Time{}
	}

	records, err := RunWithRetry(ctx, e.cfg.Network, func(ctx context.Context) ([]remote.Record, error) {
		return e.backend.Pull(ctx, since)
	})
	if err != nil {
		return 0, classifyRemoteError(err)
	}

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return 0, newError(KindUnknown, "failed to list pending changes", err)
	}
	pendingByTrip := make(map[string]store.PendingChange, len(pending))
	for _, pc := range pending {
		pendingByTrip[pc.TripID] = pc
	}

	syncProtected := e.SyncProtectedTrips()

	var (
		applyTrips      []*trip.Trip
		deletedIDs      []string
		dropPendingIDs  []string
		resolveFailures int
	)

	for _, rec := range records {
		// Protected records are excluded from the pass entirely when
		// protected-trip sync is off.
		if !syncProtected && rec.Trip != nil && rec.Trip.Protected {
			continue
		}

		_, conflicting := pendingByTrip[rec.TripID]
		if !conflicting {
			if rec.Deleted {
				deletedIDs = append(deletedIDs, rec.TripID)
			} else if rec.Trip != nil {
				applyTrips = append(applyTrips, rec.Trip)
			}
			continue
		}

		local, err := e.store.GetTrip(ctx, rec.TripID)
		if errors.Is(err, sql.ErrNoRows) {
			// No local version survives; the remote record stands and
			// the stale pending entry would push nothing useful.
			if rec.Deleted {
				deletedIDs = append(deletedIDs, rec.TripID)
			} else if rec.Trip != nil {
				applyTrips = append(applyTrips, rec.Trip)
			}
			dropPendingIDs = append(dropPendingIDs, rec.TripID)
			continue
		}
		if err != nil {
			return resolveFailures, newError(KindUnknown,
				fmt.Sprintf("failed to load trip %s", rec.TripID), err)
		}

		remoteTrip := rec.Trip
		if remoteTrip == nil {
			// Remote deletion: resolve against a tombstone so a newer
			// local edit can still win.
			remoteTrip = local.Clone()
			remoteTrip.Deleted = true
			remoteTrip.UpdatedAt = rec.ModifiedAt
		}

		resolution, err := ResolveConflict(ConflictCandidate{
			TripID:         rec.TripID,
			Local:          local,
			Remote:         remoteTrip,
			LocalModified:  local.UpdatedAt,
			RemoteModified: rec.ModifiedAt,
		})
		if err != nil {
			// Fatal for this record only: it stays unresolved and queued.
			e.logger.Printf("Warning: conflict resolution failed for trip %s: %v", rec.TripID, err)
			resolveFailures++
			continue
		}

		if resolution.Winner == WinnerRemote {
			if rec.Deleted {
				deletedIDs = append(deletedIDs, rec.TripID)
			} else {
				applyTrips = append(applyTrips, resolution.Record)
			}
			dropPendingIDs = append(dropPendingIDs, rec.TripID)
		}
		// Local winner: the queued change stays scheduled for push and
		// the remote version is discarded.
	}

	if len(applyTrips) > 0 || len(deletedIDs) > 0 || len(dropPendingIDs) > 0 {
		_, err = RunWithRetry(ctx, e.cfg.Database, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.store.ApplyRemote(ctx, applyTrips, deletedIDs, dropPendingIDs)
		})
		if err != nil {
			return resolveFailures, newError(KindUnknown, "failed to apply remote changes", err)
		}
	}

	if fullPull {
		e.mu.Lock()
		e.needFullPull = false
		e.mu.Unlock()
	}

	return resolveFailures, nil
}

// pushPending pushes queued local changes in batches. Each batch is
// retried with pushCfg; cleared entries commit per batch so a failure
// mid-pass keeps exactly the unpushed changes queued.
func (e *Engine) pushPending(ctx context.Context, pushCfg RetryConfiguration) error {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return newError(KindUnknown, "failed to list pending changes", err)
	}

	pending, err = e.filterProtected(ctx, pending)
	if err != nil {
		return err
	}

	plan := PlanBatches(len(pending), e.cfg.Batch)

	if len(pending) == 0 {
		// A no-op sync still reports one completed batch of nothing.
		e.emitProgress(Progress{
			CompletedBatches: plan.TotalBatches,
			TotalBatches:     plan.TotalBatches,
			IsCompleted:      true,
		})
		return nil
	}

	maxPerBatch := e.cfg.Batch.MaxRecordsPerBatch
	if maxPerBatch < 1 {
		maxPerBatch = 1
	}

	for i := 0; i < plan.TotalBatches; i++ {
		start := i * maxPerBatch
		end := start + maxPerBatch
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		ops, clearIDs, err := e.buildPushOps(ctx, batch)
		if err != nil {
			return err
		}

		if len(ops) > 0 {
			if err := e.pushBatch(ctx, ops, pushCfg); err != nil {
				return err
			}
		}

		if len(clearIDs) > 0 {
			_, err = RunWithRetry(ctx, e.cfg.Database, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, e.store.ClearPending(ctx, clearIDs)
			})
			if err != nil {
				return newError(KindUnknown, "failed to clear pushed changes", err)
			}
		}

		e.emitProgress(Progress{
			CompletedBatches: i + 1,
			TotalBatches:     plan.TotalBatches,
			IsCompleted:      i+1 == plan.TotalBatches,
		})

		// Fixed pacing between batches; not retried or backed off.
		if i+1 < plan.TotalBatches && plan.BatchDelay > 0 {
			if err := sleepContext(ctx, plan.BatchDelay); err != nil {
				return newError(KindUnknown, "sync cancelled between batches", err)
			}
		}
	}

	return nil
}

// pushBatch pushes one batch, selecting the retry configuration by error
// kind: a first attempt that fails on quota switches the remaining
// attempts to the quota configuration. The first attempt counts against
// the retry budget, so the backend sees at most MaxAttempts pushes per
// batch.
func (e *Engine) pushBatch(ctx context.Context, ops []remote.PushOp, pushCfg RetryConfiguration) error {
	push := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.backend.Push(ctx, ops)
	}

	firstCfg := pushCfg
	firstCfg.MaxAttempts = 1
	_, err := RunWithRetry(ctx, firstCfg, push)
	if err == nil {
		return nil
	}
	if KindOf(err) == KindOperationTimeout {
		return classifyRemoteError(err)
	}
	if remote.IsQuotaExceeded(err) {
		pushCfg = e.cfg.QuotaExceeded
	}

	rest := pushCfg
	rest.MaxAttempts = pushCfg.MaxAttempts - 1
	if rest.MaxAttempts < 1 {
		return classifyRemoteError(err)
	}
	if serr := sleepContext(ctx, DelayForAttempt(1, pushCfg)); serr != nil {
		return classifyRemoteError(err)
	}

	_, err = RunWithRetry(ctx, rest, push)
	if err != nil {
		return classifyRemoteError(err)
	}
	return nil
}

// buildPushOps converts a batch of pending changes into remote push
// operations. Records that no longer exist locally have nothing to push;
// their queue entries are cleared with the batch.
func (e *Engine) buildPushOps(ctx context.Context, batch []store.PendingChange) ([]remote.PushOp, []string, error) {
	ops := make([]remote.PushOp, 0, len(batch))
	clearIDs := make([]string, 0, len(batch))

	for _, pc := range batch {
		clearIDs = append(clearIDs, pc.ID)

		if pc.Op == store.OpDelete {
			ops = append(ops, remote.PushOp{
				TripID:     pc.TripID,
				Op:         string(pc.Op),
				ModifiedAt: pc.QueuedAt,
			})
			continue
		}

		t, err := e.store.GetTrip(ctx, pc.TripID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, newError(KindUnknown,
				fmt.Sprintf("failed to load trip %s for push", pc.TripID), err)
		}

		ops = append(ops, remote.PushOp{
			TripID:     pc.TripID,
			Op:         string(pc.Op),
			Trip:       t,
			ModifiedAt: t.UpdatedAt,
		})
	}

	return ops, clearIDs, nil
}

// filterProtected drops pending changes for protected trips when
// protected-trip sync is off. The entries stay queued; they are only
// excluded from this pass.
func (e *Engine) filterProtected(ctx context.Context, pending []store.PendingChange) ([]store.PendingChange, error) {
	if e.SyncProtectedTrips() {
		return pending, nil
	}

	filtered := pending[:0:0]
	for _, pc := range pending {
		t, err := e.store.GetTrip(ctx, pc.TripID)
		if errors.Is(err, sql.ErrNoRows) {
			filtered = append(filtered, pc)
			continue
		}
		if err != nil {
			return nil, newError(KindUnknown,
				fmt.Sprintf("failed to load trip %s", pc.TripID), err)
		}
		if t.Protected {
			continue
		}
		filtered = append(filtered, pc)
	}
	return filtered, nil
}

// classifyRemoteError maps remote backend failures onto the sync error
// taxonomy. Errors already classified (e.g. operation timeouts from the
// retry loop) pass through unchanged.
func classifyRemoteError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case remote.IsQuotaExceeded(err):
		return newError(KindQuotaExceeded, "remote quota exceeded", err)
	case remote.IsUnauthorized(err):
		return newError(KindAuthenticationRequired, "remote authentication required", err)
	default:
		return newError(KindUnknown, "remote operation failed", err)
	}
}
