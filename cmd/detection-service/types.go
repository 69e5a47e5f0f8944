package main

import (
	"net/http"
	"time"

	"clipdetect/queue/internal/detection"
	"clipdetect/queue/internal/observability/metrics"
)

type config struct {
	redisAddr          string
	redisPassword      string
	redisDB            int
	queueName          string
	concurrency        int
	dbPath             string
	apiAddr            string
	workQueueName      string
	workerTaskName     string
	workerOrigin       string
	pollInterval       time.Duration
	thumbnailTemplate  string
	thumbnailCount     int
	webhookReadyStatus int
	shutdownTimeout    time.Duration
}

type appState struct {
	cfg        config
	redis      RedisClient
	asynqCli   AsynqClient
	ledger     RecordStore
	dispatcher *detection.Dispatcher
	sweeper    *detection.Sweeper
	reconciler *detection.Reconciler
	inputs     detection.InputTemplate
	metrics    *metrics.DetectionMetrics
	metricsH   http.Handler
}

type queueTaskStatus struct {
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	UpdatedAt string      `json:"updated_at"`
}

type dispatchRequest struct {
	ClipID    string   `json:"clip_id"`
	ImageURLs []string `json:"image_urls"`
}

// videoWebhook is the CDN's video status notification.
type videoWebhook struct {
	VideoLibraryID int    `json:"VideoLibraryId"`
	VideoGUID      string `json:"VideoGuid"`
	Status         *int   `json:"Status"`
}

type backfillRequest struct {
	Category string `json:"category"`
	Async    bool   `json:"async"`
}

type backfillTaskPayload struct {
	TaskID   string `json:"task_id"`
	Category string `json:"category"`
}

type backfillProgress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Status   string `json:"status"`
	Category string `json:"category"`
}
