package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"clipdetect/queue/internal/detection"
	"clipdetect/queue/internal/ledger"
)

// RedisClient abstracts Redis operations used by the work queue, the result
// store and task state tracking.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// AsynqClient abstracts task enqueue operations.
type AsynqClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// RecordStore is the ledger as the HTTP surface and main see it.
type RecordStore interface {
	detection.Ledger
	detection.Catalog
	Close() error
}

var _ RedisClient = (*redis.Client)(nil)
var _ AsynqClient = (*asynq.Client)(nil)
var _ RecordStore = (*ledger.Store)(nil)
