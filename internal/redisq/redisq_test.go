package redisq

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipdetect/queue/internal/detection"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestWorkQueue_PushIsFIFOForConsumers(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	q := NewWorkQueue(rdb)

	require.NoError(t, q.Push(ctx, "celery", []byte("first")))
	require.NoError(t, q.Push(ctx, "celery", []byte("second")))

	// consumers pop from the right
	got, err := rdb.RPop(ctx, "celery").Result()
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	got, err = rdb.RPop(ctx, "celery").Result()
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestWorkQueue_PushError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()
	err := NewWorkQueue(rdb).Push(context.Background(), "celery", []byte("x"))
	require.Error(t, err)
}

func TestResultStore_Probe(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	s := NewResultStore(rdb)

	_, err := s.Probe(ctx, "T")
	require.ErrorIs(t, err, detection.ErrResultPending)

	require.NoError(t, mr.Set("result:T", `{"status":"completed","best_overall":{"character_name":"wraith","confidence":0.9},"detections":[],"total_images":1,"successful_images":1}`))
	res, err := s.Probe(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	require.NotNil(t, res.BestOverall)
	assert.Equal(t, "wraith", res.BestOverall.CharacterName)

	require.NoError(t, mr.Set("result:bad", `{"status":`))
	_, err = s.Probe(ctx, "bad")
	require.ErrorIs(t, err, detection.ErrMalformedResult)

	mr.Close()
	_, err = s.Probe(ctx, "T")
	require.Error(t, err)
	assert.NotErrorIs(t, err, detection.ErrResultPending)
}

func TestEndToEnd_DispatchThenReconcile(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	proto := detection.NewWireProtocol("", "", "")
	led := &mapLedger{records: map[string]detection.Record{"clip-1": {ClipID: "clip-1", Status: detection.StatusNotStarted}}}

	d := detection.NewDispatcher(NewWorkQueue(rdb), led, proto)
	taskID, err := d.Dispatch(ctx, "clip-1", []string{"https://cdn.example/1.jpg"})
	require.NoError(t, err)

	// play the worker: pop the envelope, publish a result
	raw, err := rdb.RPop(ctx, proto.Queue()).Bytes()
	require.NoError(t, err)
	env, err := proto.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, taskID, env.TaskID)
	require.NoError(t, mr.Set(detection.ResultKey(env.TaskID),
		`{"status":"completed","best_overall":{"character_name":"wraith","confidence":0.88},"detections":[],"total_images":1,"successful_images":1}`))

	rep, err := detection.NewReconciler(led, NewResultStore(rdb), 0).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, detection.StatusCompleted, led.records["clip-1"].Status)
	assert.Equal(t, detection.CharacterWraith, led.records["clip-1"].Primary)
}

// mapLedger is a minimal single-goroutine Ledger.
type mapLedger struct {
	records map[string]detection.Record
}

func (l *mapLedger) Create(_ context.Context, clipID string) error {
	if _, ok := l.records[clipID]; ok {
		return detection.ErrRecordExists
	}
	l.records[clipID] = detection.Record{ClipID: clipID, Status: detection.StatusNotStarted}
	return nil
}

func (l *mapLedger) Get(_ context.Context, clipID string) (detection.Record, error) {
	r, ok := l.records[clipID]
	if !ok {
		return detection.Record{}, detection.ErrRecordNotFound
	}
	return r, nil
}

func (l *mapLedger) MarkDispatched(_ context.Context, clipID, taskID string) error {
	r := l.records[clipID]
	r.TaskID, r.Status = taskID, detection.StatusInProgress
	l.records[clipID] = r
	return nil
}

func (l *mapLedger) Resolve(_ context.Context, clipID, taskID string, out detection.Outcome) (bool, error) {
	r := l.records[clipID]
	if r.TaskID != taskID || r.Status != detection.StatusInProgress {
		return false, nil
	}
	r.Status, r.Primary, r.Secondary = out.Status, out.Primary, out.Secondary
	l.records[clipID] = r
	return true, nil
}

func (l *mapLedger) ListByStatus(_ context.Context, status detection.Status) ([]detection.Record, error) {
	var out []detection.Record
	for _, r := range l.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *mapLedger) ListAll(_ context.Context) ([]detection.Record, error) {
	out := make([]detection.Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	return out, nil
}

func (l *mapLedger) DeleteNegative(_ context.Context, clipIDs []string) ([]string, error) {
	var deleted []string
	for _, id := range clipIDs {
		if r, ok := l.records[id]; ok && r.NegativeCompleted() {
			delete(l.records, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
