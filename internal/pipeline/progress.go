package pipeline

import (
	"sync"
	"time"
)

// TotalSteps is the number of outward-visible pipeline stages.
const TotalSteps = 7

// StepLabels are the canonical human-readable labels, indexed by step-1.
var StepLabels = [TotalSteps]string{
	"Analyzing requirements",
	"Designing architecture",
	"Generating code",
	"Writing tests",
	"Writing configuration",
	"Saving project",
	"Finalizing",
}

// Record is the poll-visible progress of one session.
type Record struct {
	Running   bool      `json:"running"`
	Step      int       `json:"step"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Result    *Result   `json:"result"`
	StartedAt time.Time `json:"started_at"`
}

type trackedRecord struct {
	Record
	finishedAt time.Time
}

// Tracker holds session-keyed progress records. Each record has a single
// writer (the pipeline goroutine owning that session) and any number of
// concurrent readers polling Peek.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*trackedRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*trackedRecord)}
}

// Start registers a new running session at step 0.
func (t *Tracker) Start(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &trackedRecord{
		Record: Record{
			Running:   true,
			Total:     TotalSteps,
			Message:   "preparing",
			StartedAt: time.Now(),
		},
	}
}

// Advance moves a session to the given step. An empty message selects the
// canonical label for that step.
func (t *Tracker) Advance(sessionID string, step int, message string) {
	if message == "" && step >= 1 && step <= TotalSteps {
		message = StepLabels[step-1]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	rec.Step = step
	rec.Message = message
}

// Finish marks a session complete and attaches its result.
func (t *Tracker) Finish(sessionID string, result *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	rec.Running = false
	rec.Result = result
	rec.finishedAt = time.Now()
}

// Peek returns a copy of a session's progress, or a default idle record for
// unknown sessions.
func (t *Tracker) Peek(sessionID string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.sessions[sessionID]; ok {
		return rec.Record
	}
	return Record{Total: TotalSteps}
}

// Elapsed returns how long a session has been running.
func (t *Tracker) Elapsed(sessionID string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.sessions[sessionID]; ok {
		return time.Since(rec.StartedAt)
	}
	return 0
}

// Reap drops finished records older than maxAge. Running sessions are never
// reaped. Returns the number of records removed.
func (t *Tracker) Reap(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, rec := range t.sessions {
		if !rec.Running && !rec.finishedAt.IsZero() && rec.finishedAt.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}
