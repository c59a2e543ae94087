package sync

import (
	"testing"
	"time"

	"github.com/wanderlog/wandersync/internal/trip"
)

func tripVersion(t *testing.T, id, title string, modified time.Time) *trip.Trip {
	t.Helper()
	return &trip.Trip{
		ID:        id,
		Title:     title,
		CreatedAt: modified.Add(-time.Hour),
		UpdatedAt: modified,
	}
}

func TestResolveConflictLastWriterWins(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		local  time.Time
		remote time.Time
		want   Winner
	}{
		{"local newer", base.Add(time.Minute), base, WinnerLocal},
		{"remote newer", base, base.Add(time.Minute), WinnerRemote},
		{"exact tie goes to remote", base, base, WinnerRemote},
		{"one nanosecond apart", base.Add(time.Nanosecond), base, WinnerLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := tripVersion(t, "trip-1", "local edit", tt.local)
			remote := tripVersion(t, "trip-1", "remote edit", tt.remote)

			res, err := ResolveConflict(ConflictCandidate{
				TripID:         "trip-1",
				Local:          local,
				Remote:         remote,
				LocalModified:  tt.local,
				RemoteModified: tt.remote,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Winner != tt.want {
				t.Errorf("winner = %v, want %v", res.Winner, tt.want)
			}

			wantTitle := "remote edit"
			if tt.want == WinnerLocal {
				wantTitle = "local edit"
			}
			if res.Record.Title != wantTitle {
				t.Errorf("resolution carried %q, want the whole winning record %q",
					res.Record.Title, wantTitle)
			}
		})
	}
}

func TestResolveConflictReturnsCopy(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	remote := tripVersion(t, "trip-1", "remote", base.Add(time.Minute))

	res, err := ResolveConflict(ConflictCandidate{
		TripID:         "trip-1",
		Local:          tripVersion(t, "trip-1", "local", base),
		Remote:         remote,
		LocalModified:  base,
		RemoteModified: base.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res.Record.Title = "mutated"
	if remote.Title != "remote" {
		t.Error("resolution must not alias the candidate's record")
	}
}

func TestResolveConflictMissingTimestamp(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	local := tripVersion(t, "trip-1", "local", base)
	remote := tripVersion(t, "trip-1", "remote", base)

	tests := []struct {
		name   string
		cand   ConflictCandidate
	}{
		{"zero local timestamp", ConflictCandidate{TripID: "trip-1", Local: local, Remote: remote, RemoteModified: base}},
		{"zero remote timestamp", ConflictCandidate{TripID: "trip-1", Local: local, Remote: remote, LocalModified: base}},
		{"missing local record", ConflictCandidate{TripID: "trip-1", Remote: remote, LocalModified: base, RemoteModified: base}},
		{"missing remote record", ConflictCandidate{TripID: "trip-1", Local: local, LocalModified: base, RemoteModified: base}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConflict(tt.cand)
			if err == nil {
				t.Fatal("expected resolution failure, got nil")
			}
			if KindOf(err) != KindConflictResolution {
				t.Errorf("kind = %v, want conflictResolutionFailed", KindOf(err))
			}
		})
	}
}
