package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caseflowhq/caseflow/internal/crypto"
	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/gcal"
)

// Summary aggregates the outcome of one reconciliation run.
type Summary struct {
	Pulled    int           `json:"pulled"`
	Pushed    int           `json:"pushed"`
	Errors    int           `json:"errors"`
	Connected bool          `json:"connected"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"-"`

	// FetchAborted is set when the pull fetch failed even after the
	// expired-cursor retry. The stored cursor is untouched in that case.
	FetchAborted bool `json:"-"`
}

// RemoteFactory builds a remote calendar client from a decrypted
// refresh token. Tests substitute a fake; production wraps gcal.NewClient.
type RemoteFactory func(ctx context.Context, refreshToken string) (RemoteCalendar, error)

// Options tunes a reconciliation run.
type Options struct {
	WindowDays  int           // bounded listing window for full resyncs
	PushBatch   int           // max pending/error rows exported per run
	CallTimeout time.Duration // applied to every remote round trip
}

// Engine orchestrates one reconciliation pass: pull phase, cursor
// persistence, then push phase. It holds no per-run state; the caller
// guarantees at most one concurrent run per account.
type Engine struct {
	db        *db.DB
	resolver  *Resolver
	remotes   RemoteFactory
	encryptor *crypto.Encryptor
	opts      Options
}

// NewEngine creates a reconciliation engine.
func NewEngine(database *db.DB, encryptor *crypto.Encryptor, remotes RemoteFactory, opts Options) *Engine {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 90
	}
	if opts.PushBatch <= 0 {
		opts.PushBatch = 50
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}

	return &Engine{
		db:        database,
		resolver:  NewResolver(database),
		remotes:   remotes,
		encryptor: encryptor,
		opts:      opts,
	}
}

// NewGoogleFactory returns the production RemoteFactory backed by the
// Google Calendar API.
func NewGoogleFactory(clientID, clientSecret string) RemoteFactory {
	return func(ctx context.Context, refreshToken string) (RemoteCalendar, error) {
		return gcal.NewClient(ctx, clientID, clientSecret, refreshToken)
	}
}

// Run executes exactly one pull+push cycle for the account and returns
// the run summary. Item-level failures are counted, never propagated;
// only a total fetch failure surfaces as an aborted pull phase.
func (e *Engine) Run(ctx context.Context, accountID string) *Summary {
	start := time.Now()
	summary := &Summary{}
	defer func() { summary.Duration = time.Since(start) }()

	conn, err := e.db.GetConnection(accountID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !conn.Connected()) {
		summary.Message = "not connected"
		return summary
	}
	if err != nil {
		summary.Errors++
		summary.Message = "failed to load connection settings"
		log.Printf("Sync %s: %v", accountID, err)
		return summary
	}
	summary.Connected = true

	refreshToken, err := e.encryptor.Decrypt(conn.RefreshToken)
	if err != nil {
		summary.Errors++
		summary.Message = "failed to decrypt stored credential"
		log.Printf("Sync %s: %v", accountID, err)
		return summary
	}

	remote, err := e.remotes(ctx, refreshToken)
	if err != nil {
		summary.Errors++
		summary.FetchAborted = true
		summary.Message = "failed to create remote client"
		log.Printf("Sync %s: %v", accountID, err)
		return summary
	}

	e.pull(ctx, conn, remote, summary)
	e.push(ctx, conn, remote, summary)

	if summary.Message == "" {
		summary.Message = fmt.Sprintf("synced: %d pulled, %d pushed, %d errors",
			summary.Pulled, summary.Pushed, summary.Errors)
	}

	return summary
}

// pull fetches remote changes and applies them item by item. The
// cursor advances whenever the fetch itself succeeded, even if some
// items failed to apply: the cursor tracks what has been seen, not
// what was successfully written.
func (e *Engine) pull(ctx context.Context, conn *db.Connection, remote RemoteCalendar, summary *Summary) {
	changes, err := e.fetch(ctx, conn, remote)
	if err != nil {
		// A fetch failure leaves the stored cursor untouched so the next
		// run re-fetches the same window. The push phase still runs.
		summary.Errors++
		summary.FetchAborted = true
		summary.Message = "pull aborted: " + err.Error()
		log.Printf("Sync %s: fetch failed: %v", conn.AccountID, err)
		return
	}

	for _, change := range changes.Events {
		if err := e.resolver.ApplyRemoteChange(conn.AccountID, change); err != nil {
			summary.Errors++
			log.Printf("Sync %s: failed to apply remote event %s: %v", conn.AccountID, change.ID, err)
			continue
		}
		summary.Pulled++
	}

	if err := e.db.SaveSyncToken(conn.AccountID, changes.NextSyncToken, time.Now().UTC()); err != nil {
		summary.Errors++
		log.Printf("Sync %s: failed to save sync token: %v", conn.AccountID, err)
	}
}

// fetch retrieves the remote change set, falling back to a full resync
// exactly once when the stored cursor has expired server-side.
func (e *Engine) fetch(ctx context.Context, conn *db.Connection, remote RemoteCalendar) (*gcal.ChangeSet, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	changes, err := remote.Changes(callCtx, conn.CalendarID, conn.SyncToken, e.opts.WindowDays)
	if err == nil {
		return changes, nil
	}
	if !errors.Is(err, gcal.ErrSyncTokenExpired) {
		return nil, err
	}

	log.Printf("Sync %s: sync token expired, performing full resync", conn.AccountID)
	if err := e.db.ClearSyncToken(conn.AccountID); err != nil {
		return nil, fmt.Errorf("failed to clear expired sync token: %w", err)
	}

	retryCtx, retryCancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer retryCancel()

	return remote.Changes(retryCtx, conn.CalendarID, "", e.opts.WindowDays)
}

// push exports the oldest pending/error rows, bounded by the batch
// size. Rows beyond the bound wait for the next scheduled run.
func (e *Engine) push(ctx context.Context, conn *db.Connection, remote RemoteCalendar, summary *Summary) {
	events, err := e.db.ListUnsynced(conn.AccountID, e.opts.PushBatch)
	if err != nil {
		summary.Errors++
		log.Printf("Sync %s: failed to list unsynced events: %v", conn.AccountID, err)
		return
	}

	for _, event := range events {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		err := e.resolver.PushEvent(callCtx, remote, conn.CalendarID, event)
		cancel()

		if err != nil {
			summary.Errors++
			log.Printf("Sync %s: failed to push event %s: %v", conn.AccountID, event.ID, err)
			continue
		}
		summary.Pushed++
	}
}
