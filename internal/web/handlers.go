package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseflowhq/caseflow/internal/activity"
	"github.com/caseflowhq/caseflow/internal/config"
	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/ics"
	"github.com/caseflowhq/caseflow/internal/scheduler"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	cfg     *config.Config
	db      *db.DB
	runner  *scheduler.Runner
	tracker *activity.Tracker
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, database *db.DB, runner *scheduler.Runner, tracker *activity.Tracker) *Handlers {
	return &Handlers{
		cfg:     cfg,
		db:      database,
		runner:  runner,
		tracker: tracker,
	}
}

// TriggerSync executes one reconciliation run for the configured
// account and reports the run summary.
func (h *Handlers) TriggerSync(c *gin.Context) {
	accountID := h.cfg.Sync.AccountID

	summary, err := h.runner.RunOnce(c.Request.Context(), accountID)
	if errors.Is(err, scheduler.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}
	if err != nil {
		log.Printf("Sync run for %s failed: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync run failed"})
		return
	}

	status := http.StatusOK
	if summary.FetchAborted {
		// Partial counts are still reported; the caller should retry.
		status = http.StatusBadGateway
	}

	c.JSON(status, summary)
}

// SyncStatus reports the in-progress run (if any) and recent history.
func (h *Handlers) SyncStatus(c *gin.Context) {
	accountID := h.cfg.Sync.AccountID

	c.JSON(http.StatusOK, gin.H{
		"current": h.tracker.Current(accountID),
		"recent":  h.tracker.Recent(),
	})
}

// CalendarFeed serves the local event store as an iCalendar document.
func (h *Handlers) CalendarFeed(c *gin.Context) {
	events, err := h.db.ListEventsByAccount(h.cfg.Sync.AccountID)
	if err != nil {
		log.Printf("Failed to load events for feed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}

	feed, err := ics.Feed(events)
	if err != nil {
		log.Printf("Failed to render feed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render feed"})
		return
	}

	c.Data(http.StatusOK, "text/calendar; charset=utf-8", feed)
}

// Liveness is a trivial liveness probe.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness checks that the database is reachable.
func (h *Handlers) Readiness(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
