package main

const (
	taskTypeBackfill = "clipdetect:backfill"

	backfillLastTaskPrefix = "clipdetect:backfill:last_task_id:"
	taskMetaPrefix         = "clipdetect:task-meta-"

	stateNotFound = "NOT_FOUND"
	statePending  = "PENDING"
	stateProgress = "PROGRESS"
	stateSuccess  = "SUCCESS"
	stateFailure  = "FAILURE"
)
