package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a recognition job through its lifecycle. Progression is
// monotonic: NOT_STARTED -> PENDING -> {COMPLETED, FAILED}. Terminal
// states are never left.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusPending    Status = "PENDING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var allStatuses = []Status{StatusNotStarted, StatusPending, StatusCompleted, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	s := Status(value)
	for _, known := range allStatuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NonTerminalStatuses returns the statuses a job can still move out of.
func NonTerminalStatuses() []Status {
	return []Status{StatusNotStarted, StatusPending}
}

// RecognitionJob is the durable record tracking one submitted image. It is
// the single source of truth for status; every write after creation goes
// through the repository's conditional transition.
type RecognitionJob struct {
	ID           uuid.UUID
	ImageKey     string
	Status       Status
	PlateNumber  *string
	Confidence   *float64
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Candidate is one OCR reading of the image: raw text plus engine
// confidence in [0,1].
type Candidate struct {
	Text       string
	Confidence float64
}
