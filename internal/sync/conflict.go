package sync

import (
	"time"

	"github.com/wanderlog/wandersync/internal/trip"
)

// Winner identifies which side of a conflict prevailed.
type Winner int

const (
	// WinnerRemote means the remote version overwrites local state.
	WinnerRemote Winner = iota

	// WinnerLocal means the local version wins and stays scheduled
	// for push.
	WinnerLocal
)

// String returns "remote" or "local".
func (w Winner) String() string {
	if w == WinnerLocal {
		return "local"
	}
	return "remote"
}

// ConflictCandidate pairs the local and remote versions of a record that
// changed on both sides since the last successful sync. Candidates are
// ephemeral: constructed during conflict detection and discarded after
// resolution.
type ConflictCandidate struct {
	TripID string

	Local  *trip.Trip
	Remote *trip.Trip

	LocalModified  time.Time
	RemoteModified time.Time
}

// Resolution is the outcome of resolving a single conflict candidate.
// Record is the whole winning record; losing-side fields are not merged.
type Resolution struct {
	Winner Winner
	Record *trip.Trip
}

// ResolveConflict decides the winning version by last-writer-wins on the
// modification timestamps.
//
// Ties resolve in favor of the remote version: remote is the authoritative
// tie-breaker, since two devices writing at the same instant is rare and
// favoring remote avoids duplicate push loops.
//
// This is whole-record replacement, not a per-field merge. Concurrent
// edits to different fields on different devices lose the losing side's
// field-level changes; a known limitation of the policy.
//
// A candidate missing either timestamp cannot be ordered and fails with a
// conflictResolutionFailed error rather than silently picking a default.
func ResolveConflict(c ConflictCandidate) (Resolution, error) {
	if c.LocalModified.IsZero() || c.RemoteModified.IsZero() {
		return Resolution{}, newError(KindConflictResolution,
			"candidate for trip "+c.TripID+" is missing a modification timestamp", nil)
	}
	if c.Local == nil || c.Remote == nil {
		return Resolution{}, newError(KindConflictResolution,
			"candidate for trip "+c.TripID+" is missing a record version", nil)
	}

	if c.LocalModified.After(c.RemoteModified) {
		return Resolution{Winner: WinnerLocal, Record: c.Local.Clone()}, nil
	}
	return Resolution{Winner: WinnerRemote, Record: c.Remote.Clone()}, nil
}
