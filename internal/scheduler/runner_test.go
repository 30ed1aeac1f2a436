package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caseflowhq/caseflow/internal/activity"
	"github.com/caseflowhq/caseflow/internal/crypto"
	"github.com/caseflowhq/caseflow/internal/db"
	"github.com/caseflowhq/caseflow/internal/gcal"
	syncengine "github.com/caseflowhq/caseflow/internal/sync"
)

const testAccount = "acct-1"

// blockingRemote parks every fetch until released so tests can hold a
// run open while probing concurrent triggers.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Changes(ctx context.Context, _, _ string, _ int) (*gcal.ChangeSet, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &gcal.ChangeSet{NextSyncToken: "next"}, nil
}

func (b *blockingRemote) Insert(context.Context, string, *gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	return nil, errors.New("not scripted")
}

func (b *blockingRemote) Update(context.Context, string, string, *gcal.RemoteEvent) (*gcal.RemoteEvent, error) {
	return nil, errors.New("not scripted")
}

func setupRunner(t *testing.T, remote syncengine.RemoteCalendar) (*Runner, *activity.Tracker, *db.DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "caseflow-runner-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create test database: %v", err)
	}

	encryptor, err := crypto.NewEncryptor(bytes.Repeat([]byte{0x03}, 32))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	engine := syncengine.NewEngine(database, encryptor,
		func(context.Context, string) (syncengine.RemoteCalendar, error) {
			return remote, nil
		},
		syncengine.Options{CallTimeout: 5 * time.Second},
	)

	tracker := activity.NewTracker()
	runner := NewRunner(engine, tracker)

	cleanup := func() {
		runner.Stop()
		database.Close()
		os.RemoveAll(tempDir)
	}

	return runner, tracker, database, cleanup
}

func connectAccount(t *testing.T, database *db.DB) {
	t.Helper()

	encryptor, err := crypto.NewEncryptor(bytes.Repeat([]byte{0x03}, 32))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	sealed, err := encryptor.Encrypt("refresh-token")
	if err != nil {
		t.Fatalf("failed to seal token: %v", err)
	}
	conn := &db.Connection{AccountID: testAccount, RefreshToken: sealed}
	if err := database.UpsertConnection(conn); err != nil {
		t.Fatalf("failed to store connection: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	t.Run("completes and records the run", func(t *testing.T) {
		remote := &blockingRemote{
			entered: make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		close(remote.release)

		runner, tracker, database, cleanup := setupRunner(t, remote)
		defer cleanup()
		connectAccount(t, database)

		summary, err := runner.RunOnce(context.Background(), testAccount)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if !summary.Connected {
			t.Error("expected connected summary")
		}

		recent := tracker.Recent()
		if len(recent) != 1 {
			t.Fatalf("expected 1 recent run, got %d", len(recent))
		}
		if recent[0].Status != "completed" {
			t.Errorf("status = %q", recent[0].Status)
		}
	})

	t.Run("rejects overlapping runs for the same account", func(t *testing.T) {
		remote := &blockingRemote{
			entered: make(chan struct{}, 1),
			release: make(chan struct{}),
		}

		runner, tracker, database, cleanup := setupRunner(t, remote)
		defer cleanup()
		connectAccount(t, database)

		done := make(chan *syncengine.Summary, 1)
		go func() {
			summary, err := runner.RunOnce(context.Background(), testAccount)
			if err != nil {
				t.Errorf("first run failed: %v", err)
			}
			done <- summary
		}()

		// Wait until the first run is inside the remote fetch.
		select {
		case <-remote.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("first run never reached the remote")
		}

		if current := tracker.Current(testAccount); current == nil || current.Status != "running" {
			t.Error("expected a running record while the run is held open")
		}

		_, err := runner.RunOnce(context.Background(), testAccount)
		if !errors.Is(err, ErrRunInProgress) {
			t.Errorf("expected ErrRunInProgress, got %v", err)
		}

		close(remote.release)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("first run never finished")
		}

		// With the lock released a new run goes through.
		if _, err := runner.RunOnce(context.Background(), testAccount); err != nil {
			t.Errorf("run after release failed: %v", err)
		}
	})
}
