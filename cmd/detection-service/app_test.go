package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"clipdetect/queue/internal/detection"
	"clipdetect/queue/internal/ledger"
)

type fakeAsynq struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeAsynq) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload()}, nil
}

func (f *fakeAsynq) Close() error { return nil }

func (f *fakeAsynq) enqueued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

type testApp struct {
	st    *appState
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *ledger.Store
	tasks *fakeAsynq
	h     http.Handler
}

func testConfig() config {
	return config{
		queueName:          "default",
		concurrency:        1,
		workQueueName:      "celery",
		workerTaskName:     detection.DefaultTaskName,
		workerOrigin:       "test@host",
		pollInterval:       time.Second,
		thumbnailTemplate:  "https://cdn.example/{video_id}/thumbnail_{n}.jpg",
		thumbnailCount:     2,
		webhookReadyStatus: 3,
		shutdownTimeout:    time.Second,
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := ledger.Open(filepath.Join(t.TempDir(), "detections.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = rdb.Close()
	})

	tasks := &fakeAsynq{}
	st, err := newAppState(testConfig(), rdb, tasks, store, prometheus.NewRegistry())
	require.NoError(t, err)
	return &testApp{st: st, mr: mr, rdb: rdb, store: store, tasks: tasks, h: st.routes()}
}

func (a *testApp) seedClip(t *testing.T, id, videoID, category string) {
	t.Helper()
	require.NoError(t, a.store.UpsertClip(context.Background(), detection.Clip{ID: id, VideoID: videoID, Category: category}))
}

// seedResolved drives a record to a terminal state through the ledger.
func (a *testApp) seedResolved(t *testing.T, clipID string, out detection.Outcome) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.store.Create(ctx, clipID))
	require.NoError(t, a.store.MarkDispatched(ctx, clipID, "seed-"+clipID))
	applied, err := a.store.Resolve(ctx, clipID, "seed-"+clipID, out)
	require.NoError(t, err)
	require.True(t, applied)
}

func (a *testApp) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (a *testApp) queued(t *testing.T) []detection.Envelope {
	t.Helper()
	raws, err := a.rdb.LRange(context.Background(), "celery", 0, -1).Result()
	require.NoError(t, err)
	proto := detection.NewWireProtocol("", "celery", "")
	envs := make([]detection.Envelope, 0, len(raws))
	// LPUSH puts the newest first
	for i := len(raws) - 1; i >= 0; i-- {
		env, err := proto.Decode([]byte(raws[i]))
		require.NoError(t, err)
		envs = append(envs, env)
	}
	return envs
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "https://cdn.example/frame.jpg"
	}
	return out
}
