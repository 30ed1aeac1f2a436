package activity

import (
	"sync"
	"time"
)

// RunRecord captures one reconciliation run for status reporting.
type RunRecord struct {
	AccountID   string     `json:"account_id"`
	Status      string     `json:"status"` // "running", "completed", "error"
	Pulled      int        `json:"pulled"`
	Pushed      int        `json:"pushed"`
	Errors      int        `json:"errors"`
	Message     string     `json:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

// Tracker tracks reconciliation activity across accounts.
type Tracker struct {
	mu        sync.RWMutex
	active    map[string]*RunRecord // accountID -> in-progress run
	recent    []*RunRecord          // most recent first
	maxRecent int
}

// NewTracker creates a new activity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:    make(map[string]*RunRecord),
		recent:    make([]*RunRecord, 0),
		maxRecent: 20,
	}
}

// StartRun begins tracking a reconciliation run.
func (t *Tracker) StartRun(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[accountID] = &RunRecord{
		AccountID: accountID,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
}

// FinishRun records the outcome of a run and moves it to the recent list.
func (t *Tracker) FinishRun(accountID string, pulled, pushed, errs int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.active[accountID]
	if !exists {
		record = &RunRecord{AccountID: accountID, StartedAt: time.Now().UTC()}
	}
	delete(t.active, accountID)

	now := time.Now().UTC()
	record.CompletedAt = &now
	record.Duration = now.Sub(record.StartedAt).Round(time.Millisecond).String()
	record.Pulled = pulled
	record.Pushed = pushed
	record.Errors = errs
	record.Message = message
	record.Status = "completed"
	if errs > 0 {
		record.Status = "error"
	}

	t.recent = append([]*RunRecord{record}, t.recent...)
	if len(t.recent) > t.maxRecent {
		t.recent = t.recent[:t.maxRecent]
	}
}

// Current returns the in-progress run for an account, if any.
func (t *Tracker) Current(accountID string) *RunRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, exists := t.active[accountID]
	if !exists {
		return nil
	}
	copied := *record
	return &copied
}

// Recent returns the most recent completed runs, newest first.
func (t *Tracker) Recent() []*RunRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*RunRecord, len(t.recent))
	for i, record := range t.recent {
		copied := *record
		out[i] = &copied
	}
	return out
}
