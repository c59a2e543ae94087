// Package store provides the local persistent store for trips, attachments,
// and the durable pending-change queue.
//
// The store is a local SQLite database opened in embedded mode with WAL for
// concurrent reads. It is the durable owner of pending changes across
// process restarts: the sync engine reloads the queue on startup and only
// removes entries once a push has been confirmed by the remote backend.
//
// Layout:
//   - trips: the trip records, soft-deleted so deletions can propagate
//   - attachments: file metadata belonging to trips
//   - pending_changes: local mutations not yet confirmed as pushed
//   - sync_meta: key/value metadata (last successful sync time)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wanderlog/wandersync/internal/trip"
)

// ChangeOp is the operation type of a pending change.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// PendingChange is a local mutation queued for push to the remote backend.
//
// A pending change is created when a local mutation cannot be pushed
// immediately, consumed once a push succeeds for that record, and retained
// indefinitely otherwise.
type PendingChange struct {
	ID       string
	TripID   string
	Op       ChangeOp
	QueuedAt time.Time
}

// Store wraps the SQLite connection with trip-store functionality.
type Store struct {
	conn *sql.DB
	path string

	notifier notifier
}

// Open creates a store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads
// and is created along with the schema if it doesn't exist. The caller
// MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
	}

	// WAL for concurrent reads during sync writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the schema if it doesn't exist. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		destination TEXT,
		notes TEXT,
		starts_on TEXT,
		ends_on TEXT,
		protected INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS pending_changes (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL,
		op TEXT NOT NULL,  -- create, update, delete
		queued_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trips_updated ON trips(updated_at);
	CREATE INDEX IF NOT EXISTS idx_trips_protected ON trips(protected);
	CREATE INDEX IF NOT EXISTS idx_attachments_trip ON attachments(trip_id);
	CREATE INDEX IF NOT EXISTS idx_pending_trip ON pending_changes(trip_id);
	CREATE INDEX IF NOT EXISTS idx_pending_queued ON pending_changes(queued_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertTrip inserts or updates a trip and queues a pending change for it.
// The write and the queue entry commit in one transaction so a crash never
// leaves a mutation without its pending change.
func (s *Store) UpsertTrip(ctx context.Context, t *trip.Trip, changeID string) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid trip: %w", err)
	}

	op := OpUpdate
	if exists, err := s.tripExists(ctx, t.ID); err != nil {
		return err
	} else if !exists {
		op = OpCreate
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTripTx(ctx, tx, t); err != nil {
		return err
	}
	if err := enqueuePendingTx(ctx, tx, changeID, t.ID, op, t.UpdatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trip upsert: %w", err)
	}

	s.notifier.notify(Event{TripID: t.ID, Op: op})
	return nil
}

// DeleteTrip soft-deletes a trip and queues a delete pending change.
// Returns nil if the trip doesn't exist (idempotent).
func (s *Store) DeleteTrip(ctx context.Context, tripID, changeID string) error {
	now := time.Now().UTC()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE trips SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`,
		now.Format(time.RFC3339Nano), tripID)
	if err != nil {
		return fmt.Errorf("failed to delete trip %s: %w", tripID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil
	}

	if err := enqueuePendingTx(ctx, tx, changeID, tripID, OpDelete, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trip delete: %w", err)
	}

	s.notifier.notify(Event{TripID: tripID, Op: OpDelete})
	return nil
}

// GetTrip retrieves a single trip by ID, including soft-deleted trips.
// Returns sql.ErrNoRows if the trip is not found.
func (s *Store) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, title, destination, notes, starts_on, ends_on,
	       protected, deleted, created_at, updated_at
	FROM trips
	WHERE id = ?
	`, id)

	return scanTrip(row)
}

// ListTrips retrieves all live (non-deleted) trips ordered by start date,
// then title.
func (s *Store) ListTrips(ctx context.Context) ([]*trip.Trip, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, title, destination, notes, starts_on, ends_on,
	       protected, deleted, created_at, updated_at
	FROM trips
	WHERE deleted = 0
	ORDER BY starts_on ASC, title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	return scanTrips(rows)
}

// AddAttachment inserts an attachment record and queues an update pending
// change for its trip, since attachment metadata syncs as part of the trip.
func (s *Store) AddAttachment(ctx context.Context, a *trip.Attachment, changeID string) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid attachment: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO attachments (id, trip_id, filename, path, size_bytes, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		filename = excluded.filename,
		path = excluded.path,
		size_bytes = excluded.size_bytes
	`,
		a.ID, a.TripID, a.Filename, a.Path, a.SizeBytes,
		a.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE trips SET updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), a.TripID); err != nil {
		return fmt.Errorf("failed to touch trip %s: %w", a.TripID, err)
	}
	if err := enqueuePendingTx(ctx, tx, changeID, a.TripID, OpUpdate, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attachment: %w", err)
	}

	s.notifier.notify(Event{TripID: a.TripID, Op: OpUpdate})
	return nil
}

// ListAttachments retrieves attachment metadata for a trip.
func (s *Store) ListAttachments(ctx context.Context, tripID string) ([]*trip.Attachment, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, trip_id, filename, path, size_bytes, created_at
	FROM attachments
	WHERE trip_id = ?
	ORDER BY created_at ASC
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*trip.Attachment
	for rows.Next() {
		var a trip.Attachment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.TripID, &a.Filename, &a.Path, &a.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			a.CreatedAt = t
		}
		attachments = append(attachments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// ListPending returns all pending changes ordered oldest first.
// At most one entry is kept per trip (later mutations collapse into it),
// so ordering by queue time gives a stable push order.
func (s *Store) ListPending(ctx context.Context) ([]PendingChange, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, trip_id, op, queued_at
	FROM pending_changes
	ORDER BY queued_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var changes []PendingChange
	for rows.Next() {
		var c PendingChange
		var op, queuedAt string
		if err := rows.Scan(&c.ID, &c.TripID, &op, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		c.Op = ChangeOp(op)
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			c.QueuedAt = t
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending changes: %w", err)
	}

	return changes, nil
}

// PendingCount returns the number of queued pending changes.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_changes").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return count, nil
}

// ClearPending removes the given pending changes in one transaction.
// Entries are cleared only after the remote backend confirmed the push, so
// a crash leaves the queue in either the pre-push or fully-cleared state.
func (s *Store) ClearPending(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := "DELETE FROM pending_changes WHERE id IN (" + placeholders + ")"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear pending changes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending clear: %w", err)
	}

	return nil
}

// ApplyRemote applies resolved remote records in one transaction: remote
// winners overwrite local trips, remote deletions remove them, and pending
// entries for overwritten trips are dropped since pushing them would
// re-apply a lost write. A crash mid-apply leaves the store in the
// pre-pass state.
func (s *Store) ApplyRemote(ctx context.Context, trips []*trip.Trip, deletedIDs []string, dropPendingTripIDs []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range trips {
		if err := upsertTripTx(ctx, tx, t); err != nil {
			return err
		}
	}

	for _, id := range deletedIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove trip %s: %w", id, err)
		}
	}

	for _, tripID := range dropPendingTripIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM pending_changes WHERE trip_id = ?`, tripID); err != nil {
			return fmt.Errorf("failed to drop pending changes for trip %s: %w", tripID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remote apply: %w", err)
	}

	return nil
}

// LastSyncAt returns the timestamp of the last successful sync, or the
// zero time if no sync has completed yet.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = 'last_sync_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync time: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync time: %w", err)
	}
	return t, nil
}

// SetLastSyncAt records the timestamp of a successful sync.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO sync_meta (key, value) VALUES ('last_sync_at', ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record last sync time: %w", err)
	}
	return nil
}

// tripExists reports whether a trip row exists, deleted or not.
func (s *Store) tripExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM trips WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trip %s: %w", id, err)
	}
	return true, nil
}

// upsertTripTx writes a trip row inside an existing transaction.
func upsertTripTx(ctx context.Context, tx *sql.Tx, t *trip.Trip) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO trips (
		id, title, destination, notes, starts_on, ends_on,
		protected, deleted, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		destination = excluded.destination,
		notes = excluded.notes,
		starts_on = excluded.starts_on,
		ends_on = excluded.ends_on,
		protected = excluded.protected,
		deleted = excluded.deleted,
		updated_at = excluded.updated_at
	`,
		t.ID,
		t.Title,
		t.Destination,
		t.Notes,
		timeToNullString(t.StartsOn),
		timeToNullString(t.EndsOn),
		boolToInt(t.Protected),
		boolToInt(t.Deleted),
		t.CreatedAt.Format(time.RFC3339Nano),
		t.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trip %s: %w", t.ID, err)
	}
	return nil
}

// enqueuePendingTx queues a pending change inside an existing transaction.
// An existing entry for the same trip collapses into the new one: the push
// sends whole records, so one entry per trip is enough.
func enqueuePendingTx(ctx context.Context, tx *sql.Tx, changeID, tripID string, op ChangeOp, queuedAt time.Time) error {
	// A delete supersedes a queued create/update; a create that was never
	// pushed followed by a delete cancels out, but keeping the delete is
	// harmless since remote deletes are idempotent.
	existing := ""
	err := tx.QueryRowContext(ctx,
		`SELECT op FROM pending_changes WHERE trip_id = ?`, tripID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check pending changes for trip %s: %w", tripID, err)
	}

	if existing != "" {
		// Preserve the original create op so the remote sees a create,
		// not an update for a record it never received.
		if ChangeOp(existing) == OpCreate && op == OpUpdate {
			op = OpCreate
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pending_changes SET op = ?, queued_at = ? WHERE trip_id = ?`,
			string(op), queuedAt.UTC().Format(time.RFC3339Nano), tripID); err != nil {
			return fmt.Errorf("failed to update pending change for trip %s: %w", tripID, err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO pending_changes (id, trip_id, op, queued_at)
	VALUES (?, ?, ?, ?)
	`, changeID, tripID, string(op), queuedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to enqueue pending change for trip %s: %w", tripID, err)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for trip scanning.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrip reads a single trip from a row.
func scanTrip(row scanner) (*trip.Trip, error) {
	var t trip.Trip
	var destination, notes sql.NullString
	var startsOn, endsOn sql.NullString
	var protected, deleted int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.Title,
		&destination,
		&notes,
		&startsOn,
		&endsOn,
		&protected,
		&deleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Destination = destination.String
	t.Notes = notes.String
	t.StartsOn = nullStringToTime(startsOn)
	t.EndsOn = nullStringToTime(endsOn)
	t.Protected = protected != 0
	t.Deleted = deleted != 0

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = ts
	}

	return &t, nil
}

// scanTrips reads all trips from query results.
func scanTrips(rows *sql.Rows) ([]*trip.Trip, error) {
	var trips []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trips: %w", err)
	}
	return trips, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
