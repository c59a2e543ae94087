// Package trip provides the data structures for trip records and their
// attachments. A trip is the unit of synchronization: flat fields with
// last-write-wins semantics, where UpdatedAt drives conflict resolution.
package trip

import (
	"fmt"
	"time"
)

// Trip represents a single trip record.
//
// The structure is sync-friendly: every field is replaced as a whole on
// conflict resolution, and UpdatedAt is the authoritative modification
// timestamp compared across devices.
type Trip struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Trip Content =====
	Title       string `json:"title"`
	Destination string `json:"destination,omitempty"`
	Notes       string `json:"notes,omitempty"`

	// ===== Scheduling =====
	StartsOn *time.Time `json:"starts_on,omitempty"`
	EndsOn   *time.Time `json:"ends_on,omitempty"`

	// ===== Sync Behavior =====
	// Protected trips are excluded from sync when protected-trip sync is
	// disabled on the engine.
	Protected bool `json:"protected,omitempty"`

	// Deleted marks a soft-deleted trip. Deletions must propagate to other
	// devices, so the record survives locally until the delete is pushed.
	Deleted bool `json:"deleted,omitempty"`

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Trip has valid field values.
func (t *Trip) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.StartsOn != nil && t.EndsOn != nil && t.EndsOn.Before(*t.StartsOn) {
		return fmt.Errorf("ends_on must not be before starts_on")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Clone returns a deep copy of the trip.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.StartsOn != nil {
		s := *t.StartsOn
		c.StartsOn = &s
	}
	if t.EndsOn != nil {
		e := *t.EndsOn
		c.EndsOn = &e
	}
	return &c
}

// Attachment represents file metadata belonging to a trip (tickets,
// reservations, photos). Attachment content stays on disk; only the
// metadata record is synchronized.
type Attachment struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Attachment has valid field values.
func (a *Attachment) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.TripID == "" {
		return fmt.Errorf("trip_id is required")
	}
	if a.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}
