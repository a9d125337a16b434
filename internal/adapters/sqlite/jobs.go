package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/ports"
)

// Create inserts a new NOT_STARTED job for the stored image.
func (s *Store) Create(ctx context.Context, imageKey string) (domain.RecognitionJob, error) {
	now := time.Now().UTC()
	job := domain.RecognitionJob{
		ID:        uuid.New(),
		ImageKey:  imageKey,
		Status:    domain.StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO recognition_jobs (id, image_key, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`,
		job.ID.String(), imageKey, string(job.Status), formatTime(now), formatTime(now),
	)
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, image_key, status, plate_number, confidence, error_message, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (domain.RecognitionJob, error) {
	var (
		job                  domain.RecognitionJob
		id, status           string
		createdAt, updatedAt string
		plate, errMsg        sql.NullString
		confidence           sql.NullFloat64
	)
	if err := row.Scan(&id, &job.ImageKey, &status, &plate, &confidence, &errMsg, &createdAt, &updatedAt); err != nil {
		return domain.RecognitionJob{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("parse job id %q: %w", id, err)
	}
	job.ID = parsed
	job.Status = domain.Status(status)
	if plate.Valid {
		v := plate.String
		job.PlateNumber = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		job.Confidence = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		job.ErrorMessage = &v
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return job, nil
}

// Get loads a job record or returns domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.RecognitionJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM recognition_jobs WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RecognitionJob{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns one page of jobs ordered newest first, plus the total count.
func (s *Store) List(ctx context.Context, page, pageSize int) ([]domain.RecognitionJob, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recognition_jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+jobColumns+` FROM recognition_jobs
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?`, pageSize, offset)
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

// Transition performs the conditional status update. It applies only when
// the current status is in the expected set; the caller learns whether it
// won via the applied flag.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, fields ports.TransitionFields) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition: empty expected status set")
	}

	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), formatTime(time.Now().UTC())}
	if fields.PlateNumber != nil {
		set = append(set, "plate_number = ?")
		args = append(args, *fields.PlateNumber)
	}
	if fields.Confidence != nil {
		set = append(set, "confidence = ?")
		args = append(args, *fields.Confidence)
	}
	if fields.ErrorMessage != nil {
		set = append(set, "error_message = ?")
		args = append(args, *fields.ErrorMessage)
	}

	args = append(args, id.String())
	for _, st := range from {
		args = append(args, string(st))
	}

	query := `UPDATE recognition_jobs SET ` + strings.Join(set, ", ") +
		` WHERE id = ? AND status IN (` + statusPlaceholders(len(from)) + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	return n == 1, nil
}

// ListStale returns ids of jobs stuck in the given statuses longer than the
// cutoff, oldest first.
func (s *Store) ListStale(ctx context.Context, statuses []domain.Status, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	if len(statuses) == 0 || limit <= 0 {
		return nil, nil
	}
	cutoff := formatTime(time.Now().UTC().Add(-olderThan))
	args := make([]any, 0, len(statuses)+2)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, cutoff, limit)

	rows, err := s.db.QueryContext(ctx, `
        SELECT id FROM recognition_jobs
        WHERE status IN (`+statusPlaceholders(len(statuses))+`) AND updated_at < ?
        ORDER BY updated_at
        LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan stale id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse stale id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
