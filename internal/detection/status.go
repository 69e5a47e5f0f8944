package detection

import "strings"

// Status is the ledger lifecycle of a clip under detection. It only ever
// advances NotStarted -> InProgress -> {Completed, Failed}.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four ledger values.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// WorkerStatus is the status string the worker pool writes into a result.
type WorkerStatus string

const (
	WorkerPending    WorkerStatus = "pending"
	WorkerProcessing WorkerStatus = "processing"
	WorkerCompleted  WorkerStatus = "completed"
	WorkerFailed     WorkerStatus = "failed"
)

// ParseWorkerStatus normalizes a worker-reported status string.
func ParseWorkerStatus(raw string) (WorkerStatus, bool) {
	ws := WorkerStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch ws {
	case WorkerPending, WorkerProcessing, WorkerCompleted, WorkerFailed:
		return ws, true
	default:
		return "", false
	}
}

// LedgerStatus maps a worker status onto the ledger. Pending and processing
// are not terminal and report false: the record stays in progress and is
// polled again on the next tick.
func (w WorkerStatus) LedgerStatus() (Status, bool) {
	switch w {
	case WorkerCompleted:
		return StatusCompleted, true
	case WorkerFailed:
		return StatusFailed, true
	default:
		return StatusInProgress, false
	}
}
