package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memLedger is an in-memory Ledger that records the order of mutations.
type memLedger struct {
	mu      sync.Mutex
	records map[string]Record
	ops     []string

	markErr   error
	listErr   error
	resolveFn func(clipID string) error
}

func newMemLedger(recs ...Record) *memLedger {
	l := &memLedger{records: make(map[string]Record)}
	for _, r := range recs {
		l.records[r.ClipID] = r
	}
	return l
}

func (l *memLedger) Create(_ context.Context, clipID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[clipID]; ok {
		return ErrRecordExists
	}
	l.records[clipID] = Record{ClipID: clipID, Status: StatusNotStarted, UpdatedAt: time.Now()}
	l.ops = append(l.ops, "create:"+clipID)
	return nil
}

func (l *memLedger) Get(_ context.Context, clipID string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[clipID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r, nil
}

func (l *memLedger) MarkDispatched(_ context.Context, clipID, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.markErr != nil {
		return l.markErr
	}
	r, ok := l.records[clipID]
	if !ok {
		return ErrRecordNotFound
	}
	if r.Status.Terminal() {
		return ErrRecordTerminal
	}
	r.TaskID = taskID
	r.Status = StatusInProgress
	l.records[clipID] = r
	l.ops = append(l.ops, "dispatch:"+clipID)
	return nil
}

func (l *memLedger) Resolve(_ context.Context, clipID, taskID string, out Outcome) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolveFn != nil {
		if err := l.resolveFn(clipID); err != nil {
			return false, err
		}
	}
	r, ok := l.records[clipID]
	if !ok || r.TaskID != taskID || r.Status != StatusInProgress {
		return false, nil
	}
	r.Status, r.Primary, r.Secondary = out.Status, out.Primary, out.Secondary
	l.records[clipID] = r
	l.ops = append(l.ops, "resolve:"+clipID)
	return true, nil
}

func (l *memLedger) ListByStatus(_ context.Context, status Status) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []Record
	for _, r := range l.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClipID < out[j].ClipID })
	return out, nil
}

func (l *memLedger) ListAll(_ context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClipID < out[j].ClipID })
	return out, nil
}

func (l *memLedger) DeleteNegative(_ context.Context, clipIDs []string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	deleted := make([]string, 0, len(clipIDs))
	for _, id := range clipIDs {
		if r, ok := l.records[id]; ok && r.NegativeCompleted() {
			delete(l.records, id)
			l.ops = append(l.ops, "delete:"+id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (l *memLedger) record(clipID string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[clipID]
	return r, ok
}

func (l *memLedger) opLog() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

// memQueue collects pushed messages per list.
type memQueue struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func newMemQueue() *memQueue {
	return &memQueue{messages: make(map[string][][]byte)}
}

func (q *memQueue) Push(_ context.Context, queue string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages[queue] = append(q.messages[queue], message)
	return nil
}

func (q *memQueue) all(queue string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.messages[queue]...)
}

// memProbe serves results by task id; raw payloads go through DecodeResult.
type memProbe struct {
	mu      sync.Mutex
	raw     map[string][]byte
	errs    map[string]error
	probes  int
	onProbe func()
}

func newMemProbe() *memProbe {
	return &memProbe{raw: make(map[string][]byte), errs: make(map[string]error)}
}

func (p *memProbe) set(taskID, payload string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw[taskID] = []byte(payload)
}

func (p *memProbe) Probe(_ context.Context, taskID string) (Result, error) {
	p.mu.Lock()
	p.probes++
	hook := p.onProbe
	err := p.errs[taskID]
	raw, ok := p.raw[taskID]
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrResultPending
	}
	return DecodeResult(raw)
}

type memCatalog struct {
	categories map[string][]Clip
}

func (c memCatalog) ClipsInCategory(_ context.Context, category string) ([]Clip, error) {
	clips, ok := c.categories[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, ErrCategoryNotFound)
	}
	return clips, nil
}

func (c memCatalog) ClipByVideoID(_ context.Context, videoID string) (Clip, error) {
	for _, clips := range c.categories {
		for _, clip := range clips {
			if clip.VideoID == videoID {
				return clip, nil
			}
		}
	}
	return Clip{}, ErrClipNotFound
}

// recordingSubmitter dispatches through a real Dispatcher and remembers the
// clip ids in call order.
type recordingSubmitter struct {
	mu    sync.Mutex
	next  Submitter
	calls []string
	fail  map[string]bool
}

func (s *recordingSubmitter) Dispatch(ctx context.Context, clipID string, inputs []string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, clipID)
	fail := s.fail[clipID]
	s.mu.Unlock()
	if fail {
		return "", errors.New("queue unavailable")
	}
	return s.next.Dispatch(ctx, clipID, inputs)
}

func (s *recordingSubmitter) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
