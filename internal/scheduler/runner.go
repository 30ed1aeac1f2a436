package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/caseflowhq/caseflow/internal/activity"
	syncengine "github.com/caseflowhq/caseflow/internal/sync"
)

// ErrRunInProgress is returned when a run is requested while another
// run for the same account is still executing.
var ErrRunInProgress = errors.New("sync already in progress for account")

const runTimeout = 10 * time.Minute // upper bound on a single reconciliation run

// Runner serializes reconciliation runs per account. The engine's
// pull/push logic has no internal locking; overlapping runs for the
// same account would duplicate remote creates and lose cursor
// advancement, so every invocation path goes through here.
type Runner struct {
	engine  *syncengine.Engine
	tracker *activity.Tracker

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner creates a runner around the reconciliation engine.
func NewRunner(engine *syncengine.Engine, tracker *activity.Tracker) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		engine:   engine,
		tracker:  tracker,
		runLocks: make(map[string]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RunOnce executes a single reconciliation run for the account. It
// returns ErrRunInProgress without touching any state when another run
// for the same account holds the lock.
func (r *Runner) RunOnce(ctx context.Context, accountID string) (*syncengine.Summary, error) {
	lock := r.runLock(accountID)
	if !lock.TryLock() {
		return nil, ErrRunInProgress
	}
	defer lock.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	r.tracker.StartRun(accountID)
	summary := r.engine.Run(runCtx, accountID)
	r.tracker.FinishRun(accountID, summary.Pulled, summary.Pushed, summary.Errors, summary.Message)

	return summary, nil
}

// StartTicker runs the account on a fixed interval until Stop is
// called. The external scheduled trigger remains the primary
// invocation path; both share the per-account lock.
func (r *Runner) StartTicker(accountID string, interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				summary, err := r.RunOnce(r.ctx, accountID)
				if errors.Is(err, ErrRunInProgress) {
					log.Printf("Skipping scheduled sync for %s - run already in progress", accountID)
					continue
				}
				if err != nil {
					log.Printf("Scheduled sync for %s failed: %v", accountID, err)
					continue
				}
				log.Printf("Scheduled sync for %s: %s", accountID, summary.Message)
			}
		}
	}()

	log.Printf("Started sync ticker for %s with interval %v", accountID, interval)
}

// Stop shuts down any tickers and waits for in-flight runs they own.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// runLock returns the mutex for an account, creating one if needed.
func (r *Runner) runLock(accountID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lock, exists := r.runLocks[accountID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	r.runLocks[accountID] = lock
	return lock
}
