package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"platescan/internal/ports"
)

// Enqueue appends a job id to the queue. Duplicate entries for the same job
// are allowed; processing is idempotent on the record side.
func (s *Store) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.execWithRetry(ctx, `
        INSERT INTO recognition_queue (job_id, enqueued_at, attempts)
        VALUES (?, ?, 0)`,
		jobID.String(), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the oldest redeliverable entry, hiding it from other
// consumers until the visibility timeout passes.
func (s *Store) Dequeue(ctx context.Context) (ports.Delivery, bool, error) {
	now := time.Now().UTC()
	var (
		receipt  int64
		rawJobID string
		attempts int
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
            UPDATE recognition_queue
            SET claimed_until = ?, attempts = attempts + 1
            WHERE id = (
                SELECT id FROM recognition_queue
                WHERE claimed_until IS NULL OR claimed_until < ?
                ORDER BY enqueued_at, id
                LIMIT 1
            )
            RETURNING id, job_id, attempts`,
			formatTime(now.Add(s.visibility)), formatTime(now),
		).Scan(&receipt, &rawJobID, &attempts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Delivery{}, false, nil
	}
	if err != nil {
		return ports.Delivery{}, false, fmt.Errorf("dequeue job: %w", err)
	}
	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		return ports.Delivery{}, false, fmt.Errorf("parse queued job id %q: %w", rawJobID, err)
	}
	return ports.Delivery{Receipt: receipt, JobID: jobID, Attempt: attempts}, true, nil
}

// Ack removes a claimed entry. Acking an already-removed receipt is a no-op.
func (s *Store) Ack(ctx context.Context, d ports.Delivery) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM recognition_queue WHERE id = ?`, d.Receipt); err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}
	return nil
}
