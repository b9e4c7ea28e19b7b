package domain

import (
	"errors"
	"time"
)

// ErrCursorExpired signals the provider no longer accepts the stored
// incremental cursor and a full window resync is required.
var ErrCursorExpired = errors.New("sync cursor expired")

// ErrRateLimited signals the provider is throttling us and the attempt should
// be retried later.
var ErrRateLimited = errors.New("provider rate limited")

// ItemKind classifies an external item.
type ItemKind string

const (
	ItemMeeting ItemKind = "meeting"
	ItemEmail   ItemKind = "email"
)

// Participant is one attendee of a meeting or correspondent on an email, as
// reported by the provider.
type Participant struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	IsOrganizer    bool   `json:"is_organizer"`
	ResponseStatus string `json:"response_status"`
}

// ExternalItem is a provider event or message normalized to a common shape.
type ExternalItem struct {
	ExternalID   string        `json:"external_id"`
	Kind         ItemKind      `json:"kind"`
	Title        string        `json:"title"`
	StartsAt     time.Time     `json:"starts_at"`
	EndsAt       *time.Time    `json:"ends_at,omitempty"`
	Location     string        `json:"location"`
	Description  string        `json:"description"`
	Participants []Participant `json:"participants"`
	// Deleted marks an item the provider reports as removed or cancelled
	// since the last cursor.
	Deleted bool `json:"deleted"`
}

// Page is one chunk of provider results. NextPageToken continues the current
// listing; NewCursor is set only once the listing is exhausted.
type Page struct {
	Items         []ExternalItem
	NextPageToken string
	NewCursor     string
}

// TimeWindow bounds a full sync. End is exclusive.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// SyncResult counts what one sync run did.
type SyncResult struct {
	Synced    int       `json:"synced"`
	Added     int       `json:"added"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	NewCursor string    `json:"-"`
	FullSync  bool      `json:"full_sync"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Merge folds the counts of another result into this one.
func (r *SyncResult) Merge(other SyncResult) {
	r.Synced += other.Synced
	r.Added += other.Added
	r.Updated += other.Updated
	r.Skipped += other.Skipped
}
