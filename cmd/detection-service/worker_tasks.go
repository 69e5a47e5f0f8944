package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func (st *appState) processBackfillTask(ctx context.Context, t *asynq.Task) error {
	var payload backfillTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode backfill payload: %w: %w", err, asynq.SkipRetry)
	}
	taskID := payload.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	category := strings.TrimSpace(payload.Category)
	if category == "" {
		err := errors.New("invalid category")
		setTaskState(ctx, st.redis, taskID, stateFailure, map[string]any{"message": err.Error()})
		return err
	}

	setTaskState(ctx, st.redis, taskID, stateProgress, toMap(backfillProgress{
		Current: 0, Total: 1, Category: category, Status: "Computing clips owed detection...",
	}))

	rep, err := st.sweeper.Sweep(ctx, category, func(done, total int) {
		if done%25 != 0 && done != total {
			return
		}
		setTaskState(ctx, st.redis, taskID, stateProgress, toMap(backfillProgress{
			Current:  done,
			Total:    total,
			Category: category,
			Status:   fmt.Sprintf("Submitted %d/%d clips", done, total),
		}))
	})
	if err != nil {
		setTaskState(ctx, st.redis, taskID, stateFailure, map[string]any{"message": err.Error(), "category": category})
		return err
	}

	result := toMap(rep)
	result["success"] = len(rep.Failed) == 0
	result["message"] = fmt.Sprintf("Backfill complete: dispatched %d, failed %d.", rep.Dispatched, len(rep.Failed))
	setTaskState(ctx, st.redis, taskID, stateSuccess, result)
	return nil
}
