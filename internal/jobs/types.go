package jobs

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further mutation is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Kind string

const (
	KindVideo    Kind = "video"
	KindSubtitle Kind = "subtitle"
)

// Result describes the artifact of a completed job.
type Result struct {
	File          string `json:"file"`
	Filename      string `json:"filename"`
	FileSize      int64  `json:"file_size"`
	FileSizeHuman string `json:"file_size_human"`
	FormatNote    string `json:"format_note,omitempty"`
}

// Job represents one tracked asynchronous download operation.
type Job struct {
	ID              string    `json:"job_id"`
	Kind            Kind      `json:"kind"`
	URL             string    `json:"url"`
	Quality         string    `json:"quality,omitempty"`
	Status          Status    `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	Message         string    `json:"message,omitempty"`
	Result          *Result   `json:"result,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Kind    Kind
	URL     string
	Quality string
}

// Update carries a partial mutation of a job record. Nil fields are left
// untouched.
type Update struct {
	Status          *Status
	ProgressPercent *int
	Message         *string
	Result          *Result
	Error           *string
}

func StatusPtr(s Status) *Status { return &s }
func IntPtr(v int) *int          { return &v }
func StringPtr(v string) *string { return &v }
