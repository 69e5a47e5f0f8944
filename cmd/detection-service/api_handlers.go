package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"clipdetect/queue/internal/detection"
)

func (st *appState) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if st.metricsH != nil {
		mux.Handle("/metrics", st.metricsH)
	}
	mux.HandleFunc("/api/detections", st.handleDetection)
	mux.HandleFunc("/api/detections/dispatch", st.handleDispatch)
	mux.HandleFunc("/api/detections/backfill", st.handleBackfill)
	mux.HandleFunc("/api/webhooks/video", st.handleVideoWebhook)
	mux.HandleFunc("/api/tasks/status", st.handleTaskStatus)
	return loggingMiddleware(st.metrics, mux)
}

func (st *appState) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req dispatchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	clipID := strings.TrimSpace(req.ClipID)
	taskID, err := st.dispatcher.Submit(r.Context(), clipID, req.ImageURLs)
	if err != nil {
		writeError(w, err, "failed to dispatch detection task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Detection task queued.",
		"clip_id": clipID,
		"task_id": taskID,
	})
}

func (st *appState) handleDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	clipID := strings.TrimSpace(r.URL.Query().Get("clip_id"))
	if clipID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "clip_id is required"})
		return
	}
	rec, err := st.ledger.Get(r.Context(), clipID)
	if err != nil {
		writeError(w, err, "failed to load detection record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (st *appState) handleVideoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var hook videoWebhook
	if err := decodeJSONBody(r, &hook); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	videoID := strings.TrimSpace(hook.VideoGUID)
	if videoID == "" || hook.Status == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "VideoGuid and Status are required"})
		return
	}
	if *hook.Status != st.cfg.webhookReadyStatus {
		logger.Debug("video webhook ignored", "video_id", videoID, "video_status", *hook.Status)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Status ignored."})
		return
	}

	ctx := r.Context()
	clip, err := st.ledger.ClipByVideoID(ctx, videoID)
	if err != nil {
		writeError(w, err, "failed to resolve clip")
		return
	}
	taskID, err := st.dispatcher.Submit(ctx, clip.ID, st.inputs.Refs(videoID))
	if errors.Is(err, detection.ErrRecordTerminal) {
		logger.Info("video webhook for finished clip", "clip_id", clip.ID, "video_id", videoID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Clip already processed.", "clip_id": clip.ID})
		return
	}
	if err != nil {
		writeError(w, err, "failed to dispatch detection task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Detection task queued.",
		"clip_id": clip.ID,
		"task_id": taskID,
	})
}

func (st *appState) handleBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req backfillRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	q := r.URL.Query()
	if req.Category == "" {
		req.Category = q.Get("category")
	}
	if q.Has("async") {
		req.Async = parseBoolParam(q.Get("async"))
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "category is required"})
		return
	}

	ctx := r.Context()
	if _, err := st.sweeper.Category(ctx, category); err != nil {
		writeError(w, err, "failed to load category")
		return
	}
	taskID, ok := st.claimBackfill(ctx, category)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "A backfill for this category is already running.",
		})
		return
	}
	if req.Async {
		st.enqueueBackfillTask(w, r, taskID, category)
		return
	}

	// task state must be written even if the client goes away mid-sweep
	stateCtx := context.WithoutCancel(ctx)
	setTaskState(stateCtx, st.redis, taskID, stateProgress, map[string]any{"status": "Running synchronously", "category": category})
	rep, err := st.sweeper.Sweep(ctx, category, nil)
	if err != nil {
		setTaskState(stateCtx, st.redis, taskID, stateFailure, map[string]any{"message": err.Error(), "category": category})
		writeError(w, err, "backfill sweep failed")
		return
	}
	setTaskState(stateCtx, st.redis, taskID, stateSuccess, toMap(rep))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Backfill sweep completed.",
		"task_id": taskID,
		"report":  rep,
	})
}

func (st *appState) enqueueBackfillTask(w http.ResponseWriter, r *http.Request, taskID, category string) {
	b, _ := json.Marshal(backfillTaskPayload{TaskID: taskID, Category: category})
	task := asynq.NewTask(taskTypeBackfill, b)

	_, err := st.asynqCli.Enqueue(task,
		asynq.Queue(st.cfg.queueName),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
		asynq.Timeout(6*time.Hour),
	)
	if err != nil {
		logger.Error("failed to enqueue backfill task",
			"category", category,
			"task_id", taskID,
			"error", err,
		)
		setTaskState(r.Context(), st.redis, taskID, stateFailure, map[string]any{"message": "failed to queue task", "category": category})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to queue task"})
		return
	}
	logger.Info("backfill task queued", "category", category, "task_id", taskID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"message": "Backfill sweep started in the background.",
		"task_id": taskID,
	})
}

func (st *appState) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("id"))
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
		return
	}
	rec, ok := getTaskState(r.Context(), st.redis, taskID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "state": stateNotFound, "message": "Unknown task"})
		return
	}
	resultMap, _ := rec.Result.(map[string]any)
	message := "Running"
	if s, ok := stringFromAny(resultMap["message"]); ok && s != "" {
		message = s
	} else if s, ok := stringFromAny(resultMap["status"]); ok && s != "" {
		message = s
	}
	resp := map[string]any{
		"task_id": taskID,
		"state":   rec.Status,
		"message": message,
		"result":  resultMap,
	}
	if v, ok := intFromAny(resultMap["current"]); ok {
		resp["current"] = v
	}
	if v, ok := intFromAny(resultMap["total"]); ok {
		resp["total"] = v
	}
	writeJSON(w, http.StatusOK, resp)
}
