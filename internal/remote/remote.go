// Package remote defines the abstract interface to the remote
// synchronization backend, plus an HTTP client implementation.
//
// The engine only depends on the Backend interface: pull changes since a
// timestamp, push a batch of local operations, and probe the account
// status. Account-status and quota semantics are inputs to the sync
// engine, not part of its design.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderlog/wandersync/internal/trip"
)

// AccountStatus reports the state of the remote account.
type AccountStatus int

const (
	// StatusUnknown means the backend could not determine account state.
	StatusUnknown AccountStatus = iota

	// StatusAvailable means the account is usable for sync.
	StatusAvailable

	// StatusNoAccount means no account is configured on this device.
	StatusNoAccount

	// StatusRestricted means the account exists but is not permitted to
	// sync (parental controls, organization policy).
	StatusRestricted

	// StatusQuotaExceeded means the account's storage or operation
	// allotment is exhausted.
	StatusQuotaExceeded
)

// String returns the account status name.
func (s AccountStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusNoAccount:
		return "noAccount"
	case StatusRestricted:
		return "restricted"
	case StatusQuotaExceeded:
		return "quotaExceeded"
	default:
		return "unknown"
	}
}

// Record is one remote change returned by Pull. For deletions Trip is nil
// and Deleted is true.
type Record struct {
	TripID     string     `json:"trip_id"`
	Trip       *trip.Trip `json:"trip,omitempty"`
	Deleted    bool       `json:"deleted,omitempty"`
	ModifiedAt time.Time  `json:"modified_at"`
}

// PushOp is one local operation sent to the remote backend. For deletes
// Trip is nil.
type PushOp struct {
	TripID     string     `json:"trip_id"`
	Op         string     `json:"op"` // create, update, delete
	Trip       *trip.Trip `json:"trip,omitempty"`
	ModifiedAt time.Time  `json:"modified_at"`
}

// Backend is the abstract push/pull API of the remote synchronization
// service.
//
// Implementations must make Push idempotent per record: the engine retries
// failed batches, so the same operation may arrive more than once.
type Backend interface {
	// Pull returns all remote changes modified after since.
	Pull(ctx context.Context, since time.Time) ([]Record, error)

	// Push applies a batch of local operations on the remote backend.
	// The batch either fully applies or fails as a unit.
	Push(ctx context.Context, batch []PushOp) error

	// AccountStatus probes the state of the remote account.
	AccountStatus(ctx context.Context) (AccountStatus, error)
}

// ErrorCode classifies remote backend failures the engine branches on.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeQuotaExceeded
	CodeUnauthorized
	CodeUnavailable
)

// Error is a typed remote backend failure.
type Error struct {
	Code   ErrorCode
	Detail string
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeQuotaExceeded:
		return fmt.Sprintf("remote quota exceeded: %s", e.Detail)
	case CodeUnauthorized:
		return fmt.Sprintf("remote authentication required: %s", e.Detail)
	case CodeUnavailable:
		return fmt.Sprintf("remote unavailable: %s", e.Detail)
	default:
		return fmt.Sprintf("remote error: %s", e.Detail)
	}
}

// IsQuotaExceeded reports whether err is a remote quota failure.
func IsQuotaExceeded(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeQuotaExceeded
}

// IsUnauthorized reports whether err is a remote authentication failure.
func IsUnauthorized(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == CodeUnauthorized
}
