// Package redisq implements the work queue and result store on Redis.
package redisq

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"clipdetect/queue/internal/detection"
)

// Client is the subset of the go-redis API the queue and store use.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

var _ Client = (*redis.Client)(nil)

// WorkQueue pushes envelopes to the head of a Redis list. The worker pool
// pops from the tail, so delivery is FIFO from its side.
type WorkQueue struct {
	rdb Client
}

func NewWorkQueue(rdb Client) *WorkQueue {
	return &WorkQueue{rdb: rdb}
}

var _ detection.WorkQueue = (*WorkQueue)(nil)

func (q *WorkQueue) Push(ctx context.Context, queue string, message []byte) error {
	if err := q.rdb.LPush(ctx, queue, message).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", queue, err)
	}
	return nil
}

// ResultStore reads worker results stored at result:<task_id>.
type ResultStore struct {
	rdb Client
}

func NewResultStore(rdb Client) *ResultStore {
	return &ResultStore{rdb: rdb}
}

var _ detection.ResultProbe = (*ResultStore)(nil)

func (s *ResultStore) Probe(ctx context.Context, taskID string) (detection.Result, error) {
	raw, err := s.rdb.Get(ctx, detection.ResultKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return detection.Result{}, detection.ErrResultPending
	}
	if err != nil {
		return detection.Result{}, fmt.Errorf("get %s: %w", detection.ResultKey(taskID), err)
	}
	return detection.DecodeResult(raw)
}
