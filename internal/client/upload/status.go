package upload

// Status is the client-side job state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusConnecting Status = "connecting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Active reports whether a job is in flight.
func (s Status) Active() bool {
	switch s {
	case StatusUploading, StatusConnecting, StatusProcessing:
		return true
	}
	return false
}

// Terminal reports whether s ends a job.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
