package db

import (
	"time"
)

// SyncStatus represents the synchronization state of a calendar event row.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending" // local change not yet exported
	SyncStatusSynced  SyncStatus = "synced"  // local and remote agree
	SyncStatusError   SyncStatus = "error"   // last export attempt failed, retried next run
)

// ValidSyncStatuses contains all valid sync status values.
var ValidSyncStatuses = map[SyncStatus]bool{
	SyncStatusPending: true,
	SyncStatusSynced:  true,
	SyncStatusError:   true,
}

// IsValid returns true if the sync status is a known valid value.
func (s SyncStatus) IsValid() bool {
	return ValidSyncStatuses[s]
}

// EventType categorizes where a calendar event originated.
type EventType string

const (
	EventTypeTaskDue EventType = "task_due" // derived from a task due date
	EventTypeMatter  EventType = "matter"   // attached to a matter
	EventTypeManual  EventType = "manual"   // entered by hand or imported from the remote calendar
)

// ValidEventTypes contains all valid event type values.
var ValidEventTypes = map[EventType]bool{
	EventTypeTaskDue: true,
	EventTypeMatter:  true,
	EventTypeManual:  true,
}

// IsValid returns true if the event type is a known valid value.
func (t EventType) IsValid() bool {
	return ValidEventTypes[t]
}

// CalendarEvent is a row in the local calendar event store. Rows are
// mutated both by the application (scheduling tasks, manual entries)
// and by the sync engine (pull overwrites, push status updates).
type CalendarEvent struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	GoogleEventID string     `json:"google_event_id"` // empty = no remote counterpart yet
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Location      string     `json:"location"`
	StartsAt      time.Time  `json:"starts_at"`
	EndsAt        time.Time  `json:"ends_at"`
	AllDay        bool       `json:"all_day"`
	EventType     EventType  `json:"event_type"`
	MatterID      string     `json:"matter_id,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	ETag          string     `json:"etag"`              // remote change-stamp, bookkeeping only
	RemoteUpdated *time.Time `json:"remote_updated_at"` // remote last-modified instant
	SyncStatus    SyncStatus `json:"sync_status"`
	SyncError     string     `json:"sync_error,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Linked reports whether the event has a remote counterpart.
func (e *CalendarEvent) Linked() bool {
	return e.GoogleEventID != ""
}

// Connection holds per-account calendar connection settings, including
// the incremental sync cursor. The refresh token is stored encrypted;
// an empty value means the account is not connected.
type Connection struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	CalendarID   string     `json:"calendar_id"`
	RefreshToken string     `json:"-"` // AES-GCM sealed, never in JSON
	SyncToken    string     `json:"-"` // opaque cursor from the remote service
	LastSyncAt   *time.Time `json:"last_sync_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Connected reports whether the account has a stored credential.
func (c *Connection) Connected() bool {
	return c != nil && c.RefreshToken != ""
}
