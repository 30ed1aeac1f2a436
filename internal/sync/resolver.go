package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/gcal"
)

// RemoteCalendar is the remote side of the reconciliation, satisfied by
// *gcal.Client in production and by fakes in tests.
type RemoteCalendar interface {
	Changes(ctx context.Context, calendarID, syncToken string, windowDays int) (*gcal.ChangeSet, error)
	Insert(ctx context.Context, calendarID string, event *gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	Update(ctx context.Context, calendarID, googleEventID string, event *gcal.RemoteEvent) (*gcal.RemoteEvent, error)
}

// Resolver decides, per item, how a remote change lands locally (pull)
// and how a local change lands remotely (push).
type Resolver struct {
	db *db.DB
}

// NewResolver creates a resolver over the local event store.
func NewResolver(database *db.DB) *Resolver {
	return &Resolver{db: database}
}

// ApplyRemoteChange applies one incoming remote change to the local
// store. Remote state wins unconditionally for rows it already knows
// about; local edits are expected to travel through the push path.
func (r *Resolver) ApplyRemoteChange(accountID string, remote gcal.RemoteEvent) error {
	local, err := r.db.GetEventByGoogleID(accountID, remote.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to look up local event: %w", err)
	}

	if remote.Cancelled {
		// Remote deletion is terminal; unknown identity is a no-op.
		if local == nil {
			return nil
		}
		if err := r.db.DeleteEvent(local.ID); err != nil {
			return fmt.Errorf("failed to delete cancelled event: %w", err)
		}
		return nil
	}

	if local != nil {
		local.Title = remote.Title
		local.Description = remote.Description
		local.Location = remote.Location
		local.StartsAt = remote.StartsAt
		local.EndsAt = remote.EndsAt
		local.AllDay = remote.AllDay
		local.ETag = remote.ETag
		if !remote.Updated.IsZero() {
			updated := remote.Updated
			local.RemoteUpdated = &updated
		}
		local.SyncStatus = db.SyncStatusSynced
		local.SyncError = ""
		if err := r.db.UpdateEvent(local); err != nil {
			return fmt.Errorf("failed to apply remote update: %w", err)
		}
		return nil
	}

	// No local row. If the remote event carries our originating marker,
	// it was created by a push from this system and the local row has
	// since been deleted. Local deletes are authoritative; never
	// re-create the row from a later pull. The remote copy is left in
	// place rather than deleted here.
	if remote.LocalEventID != "" {
		return nil
	}

	event := &db.CalendarEvent{
		AccountID:     accountID,
		GoogleEventID: remote.ID,
		Title:         remote.Title,
		Description:   remote.Description,
		Location:      remote.Location,
		StartsAt:      remote.StartsAt,
		EndsAt:        remote.EndsAt,
		AllDay:        remote.AllDay,
		EventType:     db.EventTypeManual,
		ETag:          remote.ETag,
		SyncStatus:    db.SyncStatusSynced,
	}
	if !remote.Updated.IsZero() {
		updated := remote.Updated
		event.RemoteUpdated = &updated
	}

	if err := r.db.CreateEvent(event); err != nil {
		return fmt.Errorf("failed to import remote event: %w", err)
	}
	return nil
}

// PushEvent exports one pending or errored local row to the remote
// calendar. Failures are written back onto the row as error state so
// the next run retries, and are also returned to the caller for the
// run summary.
func (r *Resolver) PushEvent(ctx context.Context, remote RemoteCalendar, calendarID string, event *db.CalendarEvent) error {
	outgoing := &gcal.RemoteEvent{
		Title:        event.Title,
		Description:  event.Description,
		Location:     event.Location,
		StartsAt:     event.StartsAt,
		EndsAt:       event.EndsAt,
		AllDay:       event.AllDay,
		LocalEventID: event.ID,
	}

	var (
		result *gcal.RemoteEvent
		err    error
	)
	if event.Linked() {
		result, err = remote.Update(ctx, calendarID, event.GoogleEventID, outgoing)
	} else {
		result, err = remote.Insert(ctx, calendarID, outgoing)
	}

	if err != nil {
		if markErr := r.db.MarkEventError(event.ID, err.Error()); markErr != nil {
			return fmt.Errorf("push failed (%w) and error state not recorded: %w", err, markErr)
		}
		return err
	}

	var remoteUpdated *time.Time
	if !result.Updated.IsZero() {
		updated := result.Updated
		remoteUpdated = &updated
	}

	if err := r.db.MarkEventSynced(event.ID, result.ID, result.ETag, remoteUpdated); err != nil {
		return fmt.Errorf("failed to record push result: %w", err)
	}
	return nil
}
