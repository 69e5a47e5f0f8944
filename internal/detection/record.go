package detection

import (
	"context"
	"strings"
	"time"
)

// Record is the ledger row for one clip under detection.
type Record struct {
	ClipID    string    `json:"clip_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Status    Status    `json:"status"`
	Primary   Character `json:"primary_detection"`
	Secondary Character `json:"secondary_detection"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NegativeCompleted reports whether the record finished without a usable
// classification and is therefore owed a retry.
func (r Record) NegativeCompleted() bool {
	return r.Status == StatusCompleted && r.Primary.IsNone()
}

// Outcome is the terminal state folded into a record from a worker result.
type Outcome struct {
	Status    Status
	Primary   Character
	Secondary Character
}

// Clip is a member of a clip population as seen by the catalog.
type Clip struct {
	ID       string
	VideoID  string
	Category string
}

// Ledger persists detection records. Implementations must keep at most one
// record per clip id.
type Ledger interface {
	// Create inserts a record at StatusNotStarted. It returns ErrRecordExists
	// when the clip already has one.
	Create(ctx context.Context, clipID string) error
	Get(ctx context.Context, clipID string) (Record, error)
	// MarkDispatched stores taskID and moves the record to StatusInProgress.
	// Terminal records are rejected with ErrRecordTerminal.
	MarkDispatched(ctx context.Context, clipID, taskID string) error
	// Resolve writes a terminal outcome when the record is still in progress
	// under taskID. It reports whether a row changed.
	Resolve(ctx context.Context, clipID, taskID string, out Outcome) (bool, error)
	ListByStatus(ctx context.Context, status Status) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	// DeleteNegative removes the records among clipIDs that are still
	// completed with CharacterNone and returns the ids it removed. Records that
	// changed state since the caller read them are left alone.
	DeleteNegative(ctx context.Context, clipIDs []string) ([]string, error)
}

// Catalog resolves clip populations. It is owned by the surrounding
// application; the core only reads it.
type Catalog interface {
	ClipsInCategory(ctx context.Context, category string) ([]Clip, error)
	ClipByVideoID(ctx context.Context, videoID string) (Clip, error)
}

// WorkQueue is the ingress list of the external worker pool. The core only
// pushes.
type WorkQueue interface {
	Push(ctx context.Context, queue string, message []byte) error
}

// ResultProbe looks up the worker's result for a task. A missing entry is
// reported as ErrResultPending, an undecodable one as ErrMalformedResult.
type ResultProbe interface {
	Probe(ctx context.Context, taskID string) (Result, error)
}

// ValidateInputs checks an input reference list before any side effect.
func ValidateInputs(inputs []string) error {
	n := 0
	for _, in := range inputs {
		if strings.TrimSpace(in) != "" {
			n++
		}
	}
	if n == 0 {
		return ErrNoInputs
	}
	if n > MaxInputs {
		return ErrTooManyInputs
	}
	return nil
}

func cleanInputs(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if v := strings.TrimSpace(in); v != "" {
			out = append(out, v)
		}
	}
	return out
}
