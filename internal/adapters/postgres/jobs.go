package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"platescan/internal/domain"
	"platescan/internal/ports"
)

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Create inserts a new NOT_STARTED job for the stored image.
func (db *DB) Create(ctx context.Context, imageKey string) (domain.RecognitionJob, error) {
	job := domain.RecognitionJob{
		ID:       uuid.New(),
		ImageKey: imageKey,
		Status:   domain.StatusNotStarted,
	}
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO recognition_jobs (id, image_key, status)
        VALUES ($1, $2, $3)
        RETURNING created_at, updated_at
    `, job.ID, imageKey, string(job.Status)).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, image_key, status, plate_number, confidence, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (domain.RecognitionJob, error) {
	var (
		job    domain.RecognitionJob
		status string
	)
	err := row.Scan(&job.ID, &job.ImageKey, &status, &job.PlateNumber,
		&job.Confidence, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.RecognitionJob{}, err
	}
	job.Status = domain.Status(status)
	return job, nil
}

// Get loads a job record or returns domain.ErrNotFound.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (domain.RecognitionJob, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM recognition_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecognitionJob{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns one page of jobs ordered newest first, plus the total count.
func (db *DB) List(ctx context.Context, page, pageSize int) ([]domain.RecognitionJob, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM recognition_jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
        SELECT `+jobColumns+` FROM recognition_jobs
        ORDER BY created_at DESC, id DESC
        LIMIT $1 OFFSET $2
    `, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.RecognitionJob, 0, pageSize)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return items, total, nil
}

// Transition performs the conditional status update in a single statement;
// the status guard makes concurrent writers race safely.
func (db *DB) Transition(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, fields ports.TransitionFields) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition: empty expected status set")
	}

	set := []string{"status = $1", "updated_at = now()"}
	args := []any{string(to)}
	n := 2
	if fields.PlateNumber != nil {
		set = append(set, fmt.Sprintf("plate_number = $%d", n))
		args = append(args, *fields.PlateNumber)
		n++
	}
	if fields.Confidence != nil {
		set = append(set, fmt.Sprintf("confidence = $%d", n))
		args = append(args, *fields.Confidence)
		n++
	}
	if fields.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", n))
		args = append(args, *fields.ErrorMessage)
		n++
	}
	query := fmt.Sprintf(`
        UPDATE recognition_jobs SET %s
        WHERE id = $%d AND status = ANY($%d)
    `, strings.Join(set, ", "), n, n+1)
	args = append(args, id, statusStrings(from))

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale returns ids of jobs stuck in the given statuses longer than the
// cutoff, oldest first.
func (db *DB) ListStale(ctx context.Context, statuses []domain.Status, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	if len(statuses) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := db.Pool.Query(ctx, `
        SELECT id FROM recognition_jobs
        WHERE status = ANY($1) AND updated_at < now() - make_interval(secs => $2)
        ORDER BY updated_at
        LIMIT $3
    `, statusStrings(statuses), olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
