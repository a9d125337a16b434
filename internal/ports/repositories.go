package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"platescan/internal/domain"
)

// TransitionFields carries the payload written alongside a status change.
// Nil pointers leave the column untouched.
type TransitionFields struct {
	PlateNumber  *string
	Confidence   *float64
	ErrorMessage *string
}

// JobRepository stores recognition job records. Transition is the only
// mutation after Create; it is a conditional update that applies atomically
// iff the current status is in the expected set. Two writers racing on the
// same job therefore cannot both win: the loser observes applied == false
// and must treat it as a no-error, not-applied signal.
type JobRepository interface {
	Create(ctx context.Context, imageKey string) (domain.RecognitionJob, error)
	Get(ctx context.Context, id uuid.UUID) (domain.RecognitionJob, error)
	List(ctx context.Context, page, pageSize int) (items []domain.RecognitionJob, total int, err error)
	Transition(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, fields TransitionFields) (applied bool, err error)

	// ListStale returns ids of jobs in any of the given statuses whose
	// updated_at is older than the cutoff. Feeds the reconciliation sweep.
	ListStale(ctx context.Context, statuses []domain.Status, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}
