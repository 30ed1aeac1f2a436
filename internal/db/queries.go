package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflowhq/caseflow/internal/validator"
)

// CreateEvent inserts a new local calendar event. New rows default to
// sync status pending so the next push phase picks them up.
func (db *DB) CreateEvent(event *CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.SyncStatus == "" {
		event.SyncStatus = SyncStatusPending
	}
	if event.EventType == "" {
		event.EventType = EventTypeManual
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt

	if err := validateEvent(event); err != nil {
		return err
	}

	query := `INSERT INTO calendar_events (
		id, account_id, google_event_id, title, description, location,
		starts_at, ends_at, all_day, event_type, matter_id, task_id,
		etag, remote_updated_at, sync_status, sync_error, last_synced_at,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		event.ID, event.AccountID, event.GoogleEventID, event.Title,
		event.Description, event.Location, event.StartsAt, event.EndsAt,
		event.AllDay, event.EventType, event.MatterID, event.TaskID,
		event.ETag, nullTime(event.RemoteUpdated), event.SyncStatus,
		event.SyncError, nullTime(event.LastSyncedAt),
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEventByID returns an event by its local primary key.
func (db *DB) GetEventByID(id string) (*CalendarEvent, error) {
	query := eventSelect + ` WHERE id = ?`
	return scanEvent(db.conn.QueryRow(query, id))
}

// GetEventByGoogleID returns the event linked to the given remote
// event identifier, if any.
func (db *DB) GetEventByGoogleID(accountID, googleEventID string) (*CalendarEvent, error) {
	query := eventSelect + ` WHERE account_id = ? AND google_event_id = ?`
	return scanEvent(db.conn.QueryRow(query, accountID, googleEventID))
}

// ListUnsynced returns up to limit events with sync status pending or
// error, oldest first. These are the push-phase candidates.
func (db *DB) ListUnsynced(accountID string, limit int) ([]*CalendarEvent, error) {
	query := eventSelect + ` WHERE account_id = ? AND sync_status IN (?, ?)
		ORDER BY created_at ASC, id ASC LIMIT ?`

	rows, err := db.conn.Query(query, accountID, SyncStatusPending, SyncStatusError, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListEventsByAccount returns all events for an account ordered by start time.
func (db *DB) ListEventsByAccount(accountID string) ([]*CalendarEvent, error) {
	query := eventSelect + ` WHERE account_id = ? ORDER BY starts_at ASC`

	rows, err := db.conn.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// UpdateEvent writes all mutable fields of an event row.
func (db *DB) UpdateEvent(event *CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()

	if err := validateEvent(event); err != nil {
		return err
	}

	query := `UPDATE calendar_events SET
		google_event_id = ?, title = ?, description = ?, location = ?,
		starts_at = ?, ends_at = ?, all_day = ?, event_type = ?,
		matter_id = ?, task_id = ?, etag = ?, remote_updated_at = ?,
		sync_status = ?, sync_error = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		event.GoogleEventID, event.Title, event.Description, event.Location,
		event.StartsAt, event.EndsAt, event.AllDay, event.EventType,
		event.MatterID, event.TaskID, event.ETag, nullTime(event.RemoteUpdated),
		event.SyncStatus, event.SyncError, nullTime(event.LastSyncedAt),
		event.UpdatedAt, event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return requireRowAffected(result)
}

// MarkEventSynced records a successful export: remote linkage,
// change-stamp, and the synced timestamp. Clears any prior error.
func (db *DB) MarkEventSynced(id, googleEventID, etag string, remoteUpdated *time.Time) error {
	if googleEventID == "" {
		return fmt.Errorf("%w: synced event requires remote linkage", validator.ErrInvalidEvent)
	}
	if etag == "" {
		return fmt.Errorf("%w: synced event requires a change-stamp", validator.ErrInvalidEvent)
	}

	now := time.Now().UTC()
	query := `UPDATE calendar_events SET
		google_event_id = ?, etag = ?, remote_updated_at = ?,
		sync_status = ?, sync_error = '', last_synced_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		googleEventID, etag, nullTime(remoteUpdated),
		SyncStatusSynced, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}

	return requireRowAffected(result)
}

// MarkEventError records a failed export attempt. The row keeps its
// remote linkage (if any) and is retried on the next run.
func (db *DB) MarkEventError(id, message string) error {
	if message == "" {
		return fmt.Errorf("%w: error status requires a message", validator.ErrInvalidEvent)
	}

	now := time.Now().UTC()
	query := `UPDATE calendar_events SET
		sync_status = ?, sync_error = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query, SyncStatusError, message, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark event error: %w", err)
	}

	return requireRowAffected(result)
}

// DeleteEvent removes an event row.
func (db *DB) DeleteEvent(id string) error {
	result, err := db.conn.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return requireRowAffected(result)
}

// GetConnection returns the connection settings for an account.
func (db *DB) GetConnection(accountID string) (*Connection, error) {
	query := `SELECT id, account_id, calendar_id, refresh_token, sync_token,
		last_sync_at, created_at, updated_at
		FROM connections WHERE account_id = ?`

	row := db.conn.QueryRow(query, accountID)

	conn := &Connection{}
	var lastSync sql.NullTime
	err := row.Scan(&conn.ID, &conn.AccountID, &conn.CalendarID,
		&conn.RefreshToken, &conn.SyncToken, &lastSync,
		&conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if lastSync.Valid {
		conn.LastSyncAt = &lastSync.Time
	}

	return conn, nil
}

// UpsertConnection creates or replaces the connection settings for an account.
func (db *DB) UpsertConnection(conn *Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if conn.CalendarID == "" {
		conn.CalendarID = "primary"
	}
	now := time.Now().UTC()
	conn.UpdatedAt = now

	query := `INSERT INTO connections (
		id, account_id, calendar_id, refresh_token, sync_token,
		last_sync_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(account_id) DO UPDATE SET
		calendar_id = excluded.calendar_id,
		refresh_token = excluded.refresh_token,
		sync_token = excluded.sync_token,
		last_sync_at = excluded.last_sync_at,
		updated_at = excluded.updated_at`

	_, err := db.conn.Exec(query,
		conn.ID, conn.AccountID, conn.CalendarID, conn.RefreshToken,
		conn.SyncToken, nullTime(conn.LastSyncAt), now, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}

	return nil
}

// SaveSyncToken persists a new sync cursor after a successful fetch.
func (db *DB) SaveSyncToken(accountID, syncToken string, syncedAt time.Time) error {
	query := `UPDATE connections SET sync_token = ?, last_sync_at = ?, updated_at = ?
		WHERE account_id = ?`

	result, err := db.conn.Exec(query, syncToken, syncedAt.UTC(), time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to save sync token: %w", err)
	}

	return requireRowAffected(result)
}

// ClearSyncToken drops the stored cursor, forcing a full resync on the
// next run. Used when the remote service reports the cursor expired.
func (db *DB) ClearSyncToken(accountID string) error {
	query := `UPDATE connections SET sync_token = '', updated_at = ? WHERE account_id = ?`

	result, err := db.conn.Exec(query, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to clear sync token: %w", err)
	}

	return requireRowAffected(result)
}

const eventSelect = `SELECT id, account_id, google_event_id, title, description,
	location, starts_at, ends_at, all_day, event_type, matter_id, task_id,
	etag, remote_updated_at, sync_status, sync_error, last_synced_at,
	created_at, updated_at
	FROM calendar_events`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*CalendarEvent, error) {
	event := &CalendarEvent{}
	var remoteUpdated, lastSynced sql.NullTime

	err := row.Scan(
		&event.ID, &event.AccountID, &event.GoogleEventID, &event.Title,
		&event.Description, &event.Location, &event.StartsAt, &event.EndsAt,
		&event.AllDay, &event.EventType, &event.MatterID, &event.TaskID,
		&event.ETag, &remoteUpdated, &event.SyncStatus, &event.SyncError,
		&lastSynced, &event.CreatedAt, &event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if remoteUpdated.Valid {
		event.RemoteUpdated = &remoteUpdated.Time
	}
	if lastSynced.Valid {
		event.LastSyncedAt = &lastSynced.Time
	}

	return event, nil
}

func collectEvents(rows *sql.Rows) ([]*CalendarEvent, error) {
	var events []*CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// validateEvent normalizes and checks an event row before it is written.
func validateEvent(event *CalendarEvent) error {
	if err := validator.ValidateEventFields(event.Title, event.StartsAt, event.EndsAt); err != nil {
		return err
	}
	if !event.SyncStatus.IsValid() {
		return fmt.Errorf("%w: unknown sync status %q", validator.ErrInvalidEvent, event.SyncStatus)
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", validator.ErrInvalidEvent, event.EventType)
	}
	if event.SyncStatus == SyncStatusError && event.SyncError == "" {
		return fmt.Errorf("%w: error status requires a message", validator.ErrInvalidEvent)
	}
	if event.SyncStatus == SyncStatusSynced && event.GoogleEventID != "" && event.ETag == "" {
		return fmt.Errorf("%w: synced linked event requires a change-stamp", validator.ErrInvalidEvent)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
