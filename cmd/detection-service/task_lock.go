package main

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

func backfillTaskKey(category string) string {
	return backfillLastTaskPrefix + strings.ToLower(strings.TrimSpace(category))
}

// isTrackedTaskBusy reports whether the task last recorded under taskKey is
// still pending or running. A recorded id without state counts as busy: the
// worker has not picked it up yet.
func (st *appState) isTrackedTaskBusy(ctx context.Context, taskKey string) bool {
	taskID, err := st.redis.Get(ctx, taskKey).Result()
	if err != nil || strings.TrimSpace(taskID) == "" {
		return false
	}
	rec, ok := getTaskState(ctx, st.redis, taskID)
	if !ok {
		return true
	}
	return rec.Status == statePending || rec.Status == stateProgress
}

// claimBackfill records a new task as the category's current backfill and
// marks it pending. It reports false when the previous one is still busy.
func (st *appState) claimBackfill(ctx context.Context, category string) (string, bool) {
	lockKey := backfillTaskKey(category)
	if st.isTrackedTaskBusy(ctx, lockKey) {
		return "", false
	}
	taskID := uuid.NewString()
	if err := st.redis.Set(ctx, lockKey, taskID, taskStateTTL).Err(); err != nil {
		logger.Error("failed to record backfill lock",
			"category", category,
			"task_id", taskID,
			"error", err,
		)
	}
	setTaskState(ctx, st.redis, taskID, statePending, map[string]any{"status": "Task is pending...", "category": category})
	return taskID, true
}
