package job

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a transfer job.
// A job only ever moves from StatusRunning to StatusDone.
type Status string

// The available job states.
const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Category classifies a log entry for display purposes.
type Category string

// The available log entry categories.
const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
	CategoryQuark   Category = "quark"
	CategoryBaidu   Category = "baidu"
)

// LogEntry is a single, immutable line of a job's log stream.
type LogEntry struct {
	// Wall-clock display time, formatted HH:MM:SS.
	Time string `json:"time"`

	// Human-readable text, HTML-escaped by the store on append.
	Message string `json:"msg"`

	Category Category `json:"type"`
}

// Progress tracks how many of the detected links have been attempted.
// Current never exceeds Total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Summary holds the final counters of a completed job.
type Summary struct {
	Success  int    `json:"success"`
	Total    int    `json:"total"`
	Duration string `json:"duration"`
}

// Job represents one asynchronous link-transfer request.
//
// It is the core entity of the service and holds all state a polling
// caller can observe: the log stream, progress counters and, once done,
// the rewritten text plus a summary.
type Job struct {
	// Auto-generated
	ID string `json:"id"`

	Status Status `json:"status"`

	// Append-only; insertion order is chronological display order.
	Logs []LogEntry `json:"logs"`

	Progress Progress `json:"progress"`

	// The input text with every successfully transferred link replaced
	// by its new share URL. Empty until Status is StatusDone.
	ResultText string `json:"result_text"`

	// Populated only at completion.
	Summary Summary `json:"summary"`

	// Used solely for retention eviction.
	CreatedAt time.Time `json:"-"`
}

// Clone returns a deep copy of j, safe to hand out while a worker keeps
// appending to the original.
func (j *Job) Clone() Job {
	c := *j
	c.Logs = make([]LogEntry, len(j.Logs))
	copy(c.Logs, j.Logs)
	return c
}

func (j Job) String() string {
	return fmt.Sprintf("Job{ID:%s, Status:%s, Progress:%d/%d, Logs:%d}",
		j.ID, j.Status, j.Progress.Current, j.Progress.Total, len(j.Logs))
}
