package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"platescan/internal/ports"
)

// Enqueue appends a job id to the queue.
func (db *DB) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO recognition_queue (job_id) VALUES ($1)`, jobID); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the oldest redeliverable entry using SKIP LOCKED so
// concurrent workers never block on one another. The claim hides the entry
// until the visibility timeout passes.
func (db *DB) Dequeue(ctx context.Context) (ports.Delivery, bool, error) {
	var d ports.Delivery
	err := db.Pool.QueryRow(ctx, `
        WITH next AS (
            SELECT id FROM recognition_queue
            WHERE claimed_until IS NULL OR claimed_until < now()
            ORDER BY enqueued_at, id
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        )
        UPDATE recognition_queue q
        SET claimed_until = now() + make_interval(secs => $1), attempts = q.attempts + 1
        FROM next
        WHERE q.id = next.id
        RETURNING q.id, q.job_id, q.attempts
    `, db.visibility.Seconds()).Scan(&d.Receipt, &d.JobID, &d.Attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.Delivery{}, false, nil
	}
	if err != nil {
		return ports.Delivery{}, false, fmt.Errorf("dequeue job: %w", err)
	}
	return d, true, nil
}

// Ack removes a claimed entry. Acking an already-removed receipt is a no-op.
func (db *DB) Ack(ctx context.Context, d ports.Delivery) error {
	if _, err := db.Pool.Exec(ctx,
		`DELETE FROM recognition_queue WHERE id = $1`, d.Receipt); err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}
	return nil
}
