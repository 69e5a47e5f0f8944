// Package detection hands character-detection work to an external worker
// pool and folds the results back into the per-clip ledger.
//
// Work flows Dispatcher -> WorkQueue -> (worker pool) -> ResultProbe ->
// Reconciler -> Ledger. The Sweeper re-derives owed work from a clip
// population and the ledger and feeds it back through the Dispatcher.
package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"clipdetect/queue/internal/observability/metrics"
)

// Submitter is the dispatch entry point used by the sweeper and the HTTP
// surface.
type Submitter interface {
	Dispatch(ctx context.Context, clipID string, inputs []string) (string, error)
}

// Option configures the Dispatcher, Reconciler and Sweeper.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.DetectionMetrics
	newID   func() string
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.DetectionMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIDGenerator replaces uuid.NewString for task ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Dispatcher pushes task envelopes onto the work queue and moves ledger
// records to in progress.
type Dispatcher struct {
	queue  WorkQueue
	ledger Ledger
	proto  WireProtocol
	opts   options
}

func NewDispatcher(queue WorkQueue, ledger Ledger, proto WireProtocol, opts ...Option) *Dispatcher {
	return &Dispatcher{queue: queue, ledger: ledger, proto: proto, opts: buildOptions(opts)}
}

// Dispatch queues detection of clipID over inputs and returns the new task
// id. The record must exist and must not be terminal; re-dispatching an in
// progress record overwrites its task id.
//
// The queue push happens before the ledger write. When the push succeeds and
// the write fails the task id is returned together with an error wrapping
// ErrLedgerWrite: the worker will process a task nothing reconciles.
func (d *Dispatcher) Dispatch(ctx context.Context, clipID string, inputs []string) (string, error) {
	if clipID == "" {
		d.opts.metrics.RecordDispatch("rejected")
		return "", ErrEmptyClipID
	}
	if err := ValidateInputs(inputs); err != nil {
		d.opts.metrics.RecordDispatch("rejected")
		return "", err
	}
	rec, err := d.ledger.Get(ctx, clipID)
	if err != nil {
		d.opts.metrics.RecordDispatch("rejected")
		return "", fmt.Errorf("dispatch %s: %w", clipID, err)
	}
	if rec.Status.Terminal() {
		d.opts.metrics.RecordDispatch("rejected")
		return "", fmt.Errorf("dispatch %s: %w", clipID, ErrRecordTerminal)
	}

	refs := cleanInputs(inputs)
	taskID := d.opts.newID()
	msg, err := d.proto.Encode(Envelope{TaskID: taskID, ClipID: clipID, Inputs: refs})
	if err != nil {
		d.opts.metrics.RecordDispatch("queue_error")
		return "", err
	}
	if err := d.queue.Push(ctx, d.proto.Queue(), msg); err != nil {
		d.opts.metrics.RecordDispatch("queue_error")
		return "", fmt.Errorf("push task %s for clip %s: %w", taskID, clipID, err)
	}

	if err := d.ledger.MarkDispatched(ctx, clipID, taskID); err != nil {
		d.opts.metrics.RecordDispatch("ledger_error")
		d.opts.logger.Error("task queued but ledger not updated",
			"clip_id", clipID,
			"task_id", taskID,
			"error", err,
		)
		return taskID, errors.Join(ErrLedgerWrite, err)
	}

	d.opts.metrics.RecordDispatch("queued")
	d.opts.logger.Info("detection task dispatched",
		"clip_id", clipID,
		"task_id", taskID,
		"previous_task_id", rec.TaskID,
		"inputs", len(refs),
	)
	return taskID, nil
}

// Submit creates the record when missing and dispatches it. An existing
// record that is still pending or in progress is dispatched again.
func (d *Dispatcher) Submit(ctx context.Context, clipID string, inputs []string) (string, error) {
	if clipID == "" {
		return "", ErrEmptyClipID
	}
	if err := ValidateInputs(inputs); err != nil {
		return "", err
	}
	if err := d.ledger.Create(ctx, clipID); err != nil && !errors.Is(err, ErrRecordExists) {
		return "", fmt.Errorf("create record %s: %w", clipID, err)
	}
	return d.Dispatch(ctx, clipID, inputs)
}
