package api

import (
	"lrcforge/internal/batch"
	"lrcforge/internal/deps"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/history"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TaskProgress locates the batch within its items.
type TaskProgress struct {
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Phase    string  `json:"phase"`
	Item     string  `json:"item"`
	Duration float64 `json:"duration"`
}

// TaskStatus is the response of GET /api/task/status.
type TaskStatus struct {
	Running      bool             `json:"running"`
	BatchID      string           `json:"batch_id,omitempty"`
	Progress     TaskProgress     `json:"progress"`
	RecentEvents []eventbus.Event `json:"recent_events"`
	StartedAt    string           `json:"started_at,omitempty"`
	FinishedAt   string           `json:"finished_at,omitempty"`
	SuccessCount int              `json:"success_count"`
	FailCount    int              `json:"fail_count"`
	Cancelled    bool             `json:"cancelled"`
	Items        []batch.Item     `json:"items"`
}

// TaskStartRequest is the body of POST /api/task/start.
type TaskStartRequest struct {
	Files []string `json:"files"`
}

// TaskStartResponse acknowledges an accepted batch.
type TaskStartResponse struct {
	Success    bool   `json:"success"`
	FilesCount int    `json:"files_count"`
	BatchID    string `json:"batch_id"`
}

// SuccessResponse is a bare acknowledgement.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// MergeStartRequest is the body of POST /api/merge/start. Files are names in
// the merge source directory; Output is a file name in the merge output
// directory.
type MergeStartRequest struct {
	Files         []string `json:"files"`
	Output        string   `json:"output"`
	DeleteSources bool     `json:"delete_sources"`
}

// MergeStatus reports the current or most recent merge job.
type MergeStatus struct {
	JobID      string `json:"job_id,omitempty"`
	State      string `json:"state"`
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	Output     string `json:"output,omitempty"`
	Files      int    `json:"files"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HistoryResponse lists finished batches, newest first.
type HistoryResponse struct {
	Batches []history.Record `json:"batches"`
}

// HealthResponse reports daemon and dependency readiness.
type HealthResponse struct {
	Healthy      bool          `json:"healthy"`
	PID          int           `json:"pid"`
	TaskRunning  bool          `json:"task_running"`
	MergeRunning bool          `json:"merge_running"`
	ConfigPath   string        `json:"config_path"`
	HistoryPath  string        `json:"history_path,omitempty"`
	Dependencies []deps.Status `json:"dependencies"`
}
