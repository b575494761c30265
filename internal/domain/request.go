package domain

import "time"

// Status is the lifecycle state of a colorization request.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// ColorizeRequest is the persisted lifecycle record of one colorization.
type ColorizeRequest struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	UserEmail     *string    `db:"user_email"`
	Status        Status     `db:"status"`
	OriginalPath  string     `db:"original_path"`
	OriginalURL   string     `db:"original_url"`
	ColorizedPath *string    `db:"colorized_path"`
	ColorizedURL  *string    `db:"colorized_url"`
	ErrorMessage  *string    `db:"error_message"`
	CreatedAt     time.Time  `db:"created_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

// Completion carries the fields written by the transition into complete.
type Completion struct {
	OriginalURL   string
	ColorizedPath string
	ColorizedURL  string
	CompletedAt   time.Time
}

// Job is the unit of background work for one request. Image is only set when
// the job never leaves the process.
type Job struct {
	RequestID    string `json:"request_id"`
	UserID       string `json:"user_id"`
	OriginalPath string `json:"original_path"`
	Platform     string `json:"platform,omitempty"`
	Image        []byte `json:"-"`
}
