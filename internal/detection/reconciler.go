package detection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPollInterval is the pause between reconciliation scans.
const DefaultPollInterval = 5 * time.Second

// TickReport summarizes one reconciliation scan.
type TickReport struct {
	Scanned   int
	Completed int
	Failed    int
	Pending   int
	Errors    int
}

// Reconciler polls the result store for every in-progress record and folds
// terminal results into the ledger. Completion is pull-based; the worker pool
// never calls back.
type Reconciler struct {
	ledger   Ledger
	probe    ResultProbe
	interval time.Duration
	opts     options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(ledger Ledger, probe ResultProbe, interval time.Duration, opts ...Option) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reconciler{ledger: ledger, probe: probe, interval: interval, opts: buildOptions(opts)}
}

// Start runs the loop in its own goroutine until Stop is called or ctx is
// canceled. A second Start while running returns ErrAlreadyRunning.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
			// the loop exited on its own when its parent context ended
			r.cancel()
		default:
			return ErrAlreadyRunning
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
	return nil
}

// Stop signals the loop and waits for it to exit. A scan in progress
// finishes the record it is writing first.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	r.mu.Lock()
	if r.done == done {
		r.cancel, r.done = nil, nil
	}
	r.mu.Unlock()
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	r.opts.logger.Info("reconciler started", "interval", r.interval.String())
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.opts.logger.Info("reconciler stopped")
			return
		case <-timer.C:
		}
		if _, err := r.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.opts.logger.Error("reconcile scan failed", "error", err)
		}
		timer.Reset(r.interval)
	}
}

// Tick runs one scan. Per-record failures are logged and counted; only a
// failure to list the in-progress records is returned. Ledger writes use a
// context detached from ctx so a shutdown never interrupts a write; the scan
// stops between records once ctx is done.
func (r *Reconciler) Tick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	var rep TickReport
	records, err := r.ledger.ListByStatus(ctx, StatusInProgress)
	if err != nil {
		return rep, err
	}
	writeCtx := context.WithoutCancel(ctx)
	for _, rec := range records {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Scanned++
		r.reconcile(ctx, writeCtx, rec, &rep)
	}
	r.opts.metrics.RecordTick(time.Since(start), len(records))
	if rep.Completed+rep.Failed > 0 || rep.Errors > 0 {
		r.opts.logger.Info("reconcile scan finished",
			"scanned", rep.Scanned,
			"completed", rep.Completed,
			"failed", rep.Failed,
			"pending", rep.Pending,
			"errors", rep.Errors,
		)
	}
	return rep, nil
}

func (r *Reconciler) reconcile(ctx, writeCtx context.Context, rec Record, rep *TickReport) {
	if rec.TaskID == "" {
		rep.Pending++
		r.opts.logger.Warn("in-progress record has no task id", "clip_id", rec.ClipID)
		return
	}
	res, err := r.probe.Probe(ctx, rec.TaskID)
	switch {
	case errors.Is(err, ErrResultPending):
		rep.Pending++
		return
	case errors.Is(err, ErrMalformedResult):
		rep.Errors++
		r.opts.metrics.RecordProbeError("malformed")
		r.opts.logger.Warn("malformed detection result",
			"clip_id", rec.ClipID,
			"task_id", rec.TaskID,
			"error", err,
		)
		return
	case err != nil:
		rep.Errors++
		r.opts.metrics.RecordProbeError("store")
		r.opts.logger.Error("result probe failed",
			"clip_id", rec.ClipID,
			"task_id", rec.TaskID,
			"error", err,
		)
		return
	}

	out, ok := Fold(rec, res)
	if !ok {
		rep.Pending++
		return
	}
	if unknown := UnknownLabels(res); len(unknown) > 0 {
		r.opts.logger.Warn("worker reported unknown character labels",
			"clip_id", rec.ClipID,
			"task_id", rec.TaskID,
			"labels", unknown,
		)
	}

	applied, err := r.ledger.Resolve(writeCtx, rec.ClipID, rec.TaskID, out)
	if err != nil {
		rep.Errors++
		r.opts.metrics.RecordProbeError("ledger")
		r.opts.logger.Error("failed to fold detection result",
			"clip_id", rec.ClipID,
			"task_id", rec.TaskID,
			"error", err,
		)
		return
	}
	if !applied {
		// re-dispatched or already folded since the scan listed it
		rep.Pending++
		return
	}

	r.opts.metrics.RecordFold(string(out.Status))
	attrs := []any{
		"clip_id", rec.ClipID,
		"task_id", rec.TaskID,
		"status", string(out.Status),
		"primary_detection", out.Primary.String(),
		"secondary_detection", out.Secondary.String(),
		"successful_images", res.SuccessfulImages,
		"total_images", res.TotalImages,
	}
	if out.Status == StatusFailed {
		rep.Failed++
		if res.Error != nil {
			attrs = append(attrs, "worker_error", *res.Error)
		}
		r.opts.logger.Warn("detection task failed", attrs...)
		return
	}
	rep.Completed++
	r.opts.logger.Info("detection task completed", attrs...)
}
