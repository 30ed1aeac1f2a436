package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrSyncTokenExpired is returned when the remote service rejects the
	// incremental sync token. The caller must drop the stored cursor and
	// repeat the fetch as a full listing.
	ErrSyncTokenExpired = errors.New("sync token expired")

	ErrRemoteCall = errors.New("remote calendar call failed")
)

// markerKey is the extended property stamped on every event this
// system creates remotely. Its presence on an incoming remote event
// identifies the event as one of ours.
const markerKey = "caseflowEventId"

const dateLayout = "2006-01-02"

// RemoteEvent is the provider-neutral view of one Google Calendar event.
type RemoteEvent struct {
	ID           string
	ETag         string
	Cancelled    bool
	Title        string
	Description  string
	Location     string
	StartsAt     time.Time
	EndsAt       time.Time
	AllDay       bool
	Updated      time.Time
	LocalEventID string // originating marker; empty for events created elsewhere
}

// ChangeSet holds one fetch result: the changed events and the cursor
// to resume from next time.
type ChangeSet struct {
	Events        []RemoteEvent
	NextSyncToken string
}

// Client wraps the Google Calendar API for a single connected account.
type Client struct {
	svc *calendar.Service
}

// NewClient builds a client from the OAuth application credentials and
// the account's long-lived refresh token. Access tokens are minted on
// demand by the token source.
func NewClient(ctx context.Context, clientID, clientSecret, refreshToken string) (*Client, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{svc: svc}, nil
}

// Changes lists events changed since syncToken. With an empty token it
// performs a full listing bounded to windowDays either side of now and
// synthesizes the initial cursor. Returns ErrSyncTokenExpired when the
// remote service reports the token invalid.
func (c *Client) Changes(ctx context.Context, calendarID, syncToken string, windowDays int) (*ChangeSet, error) {
	set := &ChangeSet{}
	pageToken := ""

	for {
		call := c.svc.Events.List(calendarID).
			ShowDeleted(true).
			SingleEvents(true).
			Context(ctx)

		if syncToken != "" {
			call = call.SyncToken(syncToken)
		} else {
			now := time.Now().UTC()
			call = call.
				TimeMin(now.AddDate(0, 0, -windowDays).Format(time.RFC3339)).
				TimeMax(now.AddDate(0, 0, windowDays).Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			if isGone(err) {
				return nil, ErrSyncTokenExpired
			}
			return nil, fmt.Errorf("%w: list events: %w", ErrRemoteCall, err)
		}

		for _, item := range page.Items {
			set.Events = append(set.Events, fromGoogleEvent(item))
		}

		if page.NextPageToken == "" {
			set.NextSyncToken = page.NextSyncToken
			return set, nil
		}
		pageToken = page.NextPageToken
	}
}

// Insert creates a remote event carrying the originating marker and
// returns its assigned identity and change-stamp.
func (c *Client) Insert(ctx context.Context, calendarID string, event *RemoteEvent) (*RemoteEvent, error) {
	created, err := c.svc.Events.Insert(calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: insert event: %w", ErrRemoteCall, err)
	}

	result := fromGoogleEvent(created)
	return &result, nil
}

// Update overwrites the remote event addressed by googleEventID and
// returns its refreshed change-stamp.
func (c *Client) Update(ctx context.Context, calendarID, googleEventID string, event *RemoteEvent) (*RemoteEvent, error) {
	updated, err := c.svc.Events.Update(calendarID, googleEventID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: update event: %w", ErrRemoteCall, err)
	}

	result := fromGoogleEvent(updated)
	return &result, nil
}

// isGone reports whether the error is the API's "sync token is no
// longer valid" response.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusGone
}

// fromGoogleEvent converts an API event into the provider-neutral form.
// Cancelled events arrive with identity only; content fields stay zero.
func fromGoogleEvent(item *calendar.Event) RemoteEvent {
	event := RemoteEvent{
		ID:        item.Id,
		ETag:      item.Etag,
		Cancelled: item.Status == "cancelled",
	}

	if item.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			event.Updated = updated.UTC()
		}
	}

	if item.ExtendedProperties != nil && item.ExtendedProperties.Private != nil {
		event.LocalEventID = item.ExtendedProperties.Private[markerKey]
	}

	if event.Cancelled {
		return event
	}

	event.Title = item.Summary
	event.Description = item.Description
	event.Location = item.Location
	event.StartsAt, event.AllDay = parseEventTime(item.Start)
	event.EndsAt, _ = parseEventTime(item.End)

	return event
}

// toGoogleEvent converts back for insert/update calls. The originating
// marker is always stamped so a later pull can recognize our events.
func toGoogleEvent(event *RemoteEvent) *calendar.Event {
	item := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
	}

	if event.LocalEventID != "" {
		item.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{markerKey: event.LocalEventID},
		}
	}

	if event.AllDay {
		item.Start = &calendar.EventDateTime{Date: event.StartsAt.UTC().Format(dateLayout)}
		item.End = &calendar.EventDateTime{Date: event.EndsAt.UTC().Format(dateLayout)}
	} else {
		item.Start = &calendar.EventDateTime{DateTime: event.StartsAt.UTC().Format(time.RFC3339)}
		item.End = &calendar.EventDateTime{DateTime: event.EndsAt.UTC().Format(time.RFC3339)}
	}

	return item
}

// parseEventTime handles both timed (dateTime) and all-day (date) values.
func parseEventTime(edt *calendar.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}

	if edt.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return parsed.UTC(), false
		}
		return time.Time{}, false
	}

	if edt.Date != "" {
		if parsed, err := time.Parse(dateLayout, edt.Date); err == nil {
			return parsed.UTC(), true
		}
	}

	return time.Time{}, false
}
