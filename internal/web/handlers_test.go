package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caseflowhq/caseflow/internal/activity"
	"github.com/caseflowhq/caseflow/internal/config"
	"github.com/caseflowhq/caseflow/internal/crypto"
	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/gcal"
	"github.com/caseflowhq/caseflow/internal/scheduler"
	syncengine "github.com/caseflowhq/caseflow/internal/sync"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	testAccount = "default"
)

// fakeRemote is a scriptable remote calendar for handler tests.
type fakeRemote struct {
	changesFn func(syncToken string) (*gcal.ChangeSet, error)
	insertFn  func(event *gcal.RemoteEvent) (*gcal.RemoteEvent, error)
}

func (f *fakeRemote) Changes(_ context.Context, _, syncToken string, _ int) (*gcal.ChangeSet, error) {
	if f.changesFn == nil {
		return &gcal.ChangeSet{NextSyncToken: "next"}, nil
	}
	return f.changesFn(syncToken)
}

func (f *fakeRemote) Insert(_ context.Context, _ string, event *gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	if f.insertFn == nil {
		return nil, errors.New("insert not scripted")
	}
	return f.insertFn(event)
}

func (f *fakeRemote) Update(_ context.Context, _, _ string, _ *gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	return nil, errors.New("update not scripted")
}

func newTestServer(t *testing.T, remote syncengine.RemoteCalendar) (*gin.Engine, *db.DB, *crypto.Encryptor, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "caseflow-web-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}

	encryptor, err := crypto.NewEncryptor(bytes.Repeat([]byte{0x02}, 32))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	cfg := &config.Config{}
	cfg.Security.SyncSecret = testSecret
	cfg.Sync.AccountID = testAccount

	engine := syncengine.NewEngine(database, encryptor,
		func(context.Context, string) (syncengine.RemoteCalendar, error) {
			return remote, nil
		},
		syncengine.Options{CallTimeout: 5 * time.Second},
	)

	tracker := activity.NewTracker()
	runner := scheduler.NewRunner(engine, tracker)
	handlers := NewHandlers(cfg, database, runner, tracker)

	router := gin.New()
	SetupRoutes(router, handlers, testSecret, 100, 100)

	cleanup := func() {
		runner.Stop()
		database.Close()
		os.RemoveAll(tempDir)
	}

	return router, database, encryptor, cleanup
}

func connectTestAccount(t *testing.T, database *db.DB, encryptor *crypto.Encryptor) {
	t.Helper()

	sealed, err := encryptor.Encrypt("refresh-token")
	if err != nil {
		t.Fatalf("failed to seal token: %v", err)
	}
	conn := &db.Connection{AccountID: testAccount, RefreshToken: sealed}
	if err := database.UpsertConnection(conn); err != nil {
		t.Fatalf("failed to store connection: %v", err)
	}
}

func doRequest(router *gin.Engine, method, path, secret string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestTriggerSync(t *testing.T) {
	t.Run("rejects unauthenticated trigger", func(t *testing.T) {
		router, _, _, cleanup := newTestServer(t, &fakeRemote{})
		defer cleanup()

		w := doRequest(router, http.MethodPost, "/api/sync/run", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("reports not connected with zero counts", func(t *testing.T) {
		router, _, _, cleanup := newTestServer(t, &fakeRemote{})
		defer cleanup()

		w := doRequest(router, http.MethodPost, "/api/sync/run", testSecret)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var summary syncengine.Summary
		if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
			t.Fatalf("invalid response body: %v", err)
		}
		if summary.Connected {
			t.Error("expected connected=false")
		}
		if summary.Pulled != 0 || summary.Pushed != 0 || summary.Errors != 0 {
			t.Errorf("expected zero counts, got %+v", summary)
		}
		if summary.Message != "not connected" {
			t.Errorf("message = %q", summary.Message)
		}
	})

	t.Run("runs a full cycle and reports counts", func(t *testing.T) {
		remote := &fakeRemote{
			insertFn: func(*gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
				return &gcal.RemoteEvent{ID: "R1", ETag: "etag-1"}, nil
			},
		}
		router, database, encryptor, cleanup := newTestServer(t, remote)
		defer cleanup()
		connectTestAccount(t, database, encryptor)

		start := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
		event := &db.CalendarEvent{
			AccountID: testAccount,
			Title:     "Call client",
			StartsAt:  start,
			EndsAt:    start.Add(time.Hour),
		}
		if err := database.CreateEvent(event); err != nil {
			t.Fatalf("failed to seed event: %v", err)
		}

		w := doRequest(router, http.MethodPost, "/api/sync/run", testSecret)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var summary syncengine.Summary
		if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
			t.Fatalf("invalid response body: %v", err)
		}
		if summary.Pushed != 1 || summary.Errors != 0 {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("reports bad gateway when the fetch aborts", func(t *testing.T) {
		remote := &fakeRemote{
			changesFn: func(string) (*gcal.ChangeSet, error) {
				return nil, errors.New("connection refused")
			},
		}
		router, database, encryptor, cleanup := newTestServer(t, remote)
		defer cleanup()
		connectTestAccount(t, database, encryptor)

		w := doRequest(router, http.MethodPost, "/api/sync/run", testSecret)
		if w.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", w.Code)
		}
	})
}

func TestSyncStatus(t *testing.T) {
	router, _, _, cleanup := newTestServer(t, &fakeRemote{})
	defer cleanup()

	// Run once so there is history to report.
	doRequest(router, http.MethodPost, "/api/sync/run", testSecret)

	w := doRequest(router, http.MethodGet, "/api/sync/status", testSecret)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Current *activity.RunRecord  `json:"current"`
		Recent  []activity.RunRecord `json:"recent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body.Current != nil {
		t.Error("no run should be in progress")
	}
	if len(body.Recent) != 1 {
		t.Fatalf("expected 1 recent run, got %d", len(body.Recent))
	}
	if body.Recent[0].Status != "completed" {
		t.Errorf("status = %q", body.Recent[0].Status)
	}
}

func TestCalendarFeed(t *testing.T) {
	router, database, _, cleanup := newTestServer(t, &fakeRemote{})
	defer cleanup()

	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	event := &db.CalendarEvent{
		AccountID: testAccount,
		Title:     "Settlement conference",
		StartsAt:  start,
		EndsAt:    start.Add(2 * time.Hour),
	}
	if err := database.CreateEvent(event); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	t.Run("requires the shared secret", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/feed.ics", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("serves an iCalendar document", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/feed.ics", testSecret)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/calendar") {
			t.Errorf("content type = %q", w.Header().Get("Content-Type"))
		}
		body := w.Body.String()
		if !strings.Contains(body, "BEGIN:VCALENDAR") {
			t.Error("missing VCALENDAR envelope")
		}
		if !strings.Contains(body, "Settlement conference") {
			t.Error("missing event summary")
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _, cleanup := newTestServer(t, &fakeRemote{})
	defer cleanup()

	t.Run("liveness needs no auth", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/healthz", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})

	t.Run("readiness pings the database", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/ready", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}
