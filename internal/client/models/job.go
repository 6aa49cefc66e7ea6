package models

import "time"

// JobStatus is the status vocabulary used by the progress channel and by
// the polling fallback.
type JobStatus string

const (
	StatusStarting   JobStatus = "starting"
	StatusValidating JobStatus = "validating"
	StatusExtracting JobStatus = "extracting"
	StatusProcessing JobStatus = "processing"
	StatusGenerating JobStatus = "generating"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"

	// Server acknowledgements of control messages.
	StatusCancelling   JobStatus = "cancelling"
	StatusCancelFailed JobStatus = "cancel_failed"
	StatusNotFound     JobStatus = "not_found"
)

// IsTerminal reports whether no further events are expected after s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ProgressEvent is one status update for a job, whether received over the
// channel or synthesized by polling.
type ProgressEvent struct {
	FileID    string    `json:"file_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// ProcessingType tells whether the server used the AI pipeline.
type ProcessingType string

const (
	ProcessingBasic ProcessingType = "basic"
	ProcessingAI    ProcessingType = "ai"
)

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	FileID         string         `json:"file_id"`
	Message        string         `json:"message"`
	ProcessingType ProcessingType `json:"processing_type"`
}

// UploadRequest describes a file to submit.
type UploadRequest struct {
	Path     string
	Filename string
	UseAI    bool
}

// HistoryItem is one conversion recorded for the session.
type HistoryItem struct {
	FileID            string         `json:"file_id"`
	OriginalFilename  string         `json:"original_filename"`
	ConvertedFilename string         `json:"converted_filename"`
	UploadTime        time.Time      `json:"upload_time"`
	Status            string         `json:"status"`
	FileSize          int64          `json:"file_size,omitempty"`
	ProcessingType    ProcessingType `json:"processing_type"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Success    bool           `json:"success"`
	Files      []HistoryItem  `json:"files"`
	TotalCount int            `json:"total_count"`
	Stats      map[string]any `json:"session_stats,omitempty"`
}

// SessionStats is returned by GET /history/stats.
type SessionStats struct {
	TotalFiles       int `json:"total_files"`
	CompletedFiles   int `json:"completed_files"`
	FailedFiles      int `json:"failed_files"`
	AIConversions    int `json:"ai_conversions"`
	BasicConversions int `json:"basic_conversions"`
}
