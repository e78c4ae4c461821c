// Package jobstore is the process-wide registry of transfer jobs.
//
// All job state is volatile: it lives in process memory only and is lost
// on restart. Entries older than RetentionWindow are evicted lazily,
// whenever a new job is created.
//
// The store is the only resource shared between the request handlers and
// the worker goroutines, so every operation is safe for concurrent use.
package jobstore

import (
	"errors"
	"html"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panrelay/panrelay/job"
)

// RetentionWindow is the age past which a job is eligible for eviction.
const RetentionWindow = 24 * time.Hour

// ErrNotFound is returned by Get when the requested job does not exist
// (or has been evicted).
var ErrNotFound = errors.New("Not Found")

// Store holds all in-flight and completed jobs, keyed by id.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job

	// Clock used for creation stamps, log timestamps and eviction.
	// Overridable in tests.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		Now:  time.Now,
	}
}

// Create allocates a new running job and returns its id. Before
// inserting, it sweeps any job older than RetentionWindow.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()

	id := uuid.NewString()[:8]
	s.jobs[id] = &job.Job{
		ID:        id,
		Status:    job.StatusRunning,
		Logs:      []job.LogEntry{},
		CreatedAt: s.Now(),
	}
	return id
}

// sweep deletes expired jobs. Callers must hold the write lock.
func (s *Store) sweep() {
	now := s.Now()
	for id, j := range s.jobs {
		if now.Sub(j.CreatedAt) > RetentionWindow {
			delete(s.jobs, id)
		}
	}
}

// Get returns a copy of the job with the given id, or ErrNotFound.
// The copy is safe to read while the owning worker keeps mutating the
// original.
func (s *Store) Get(id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

// AppendLog appends a log entry with the current display timestamp.
// The message is HTML-escaped here so external consumers can render the
// log stream as-is. Unknown ids and completed jobs are a no-op.
func (s *Store) AppendLog(id, message string, category job.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status == job.StatusDone {
		return
	}
	j.Logs = append(j.Logs, job.LogEntry{
		Time:     s.Now().Format("15:04:05"),
		Message:  html.EscapeString(message),
		Category: category,
	})
}

// SetProgress overwrites the job's progress counters. Unknown ids and
// completed jobs are a no-op. Current is clamped to total and never
// allowed to regress, keeping the published progress monotonic.
func (s *Store) SetProgress(id string, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status == job.StatusDone {
		return
	}
	if current > total {
		current = total
	}
	if current < j.Progress.Current {
		return
	}
	j.Progress = job.Progress{Current: current, Total: total}
}

// Complete marks the job done, recording the final text and summary.
// Irreversible: any later mutation through the store is ignored.
// Unknown ids are a no-op.
func (s *Store) Complete(id, resultText string, summary job.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status == job.StatusDone {
		return
	}
	j.Status = job.StatusDone
	j.ResultText = resultText
	j.Summary = summary
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
