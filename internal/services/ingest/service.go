// Package ingest accepts uploaded images, persists them, and schedules
// recognition work.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/ports"
)

// enqueueAttempts bounds the retry loop around queue submission. A job record
// that exists without a queue entry is still recoverable through the sweeper,
// so giving up here is safe.
const enqueueAttempts = 3

var extByType = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Service owns the write path: store the image, create the job record, put a
// delivery on the queue.
type Service struct {
	repo     ports.JobRepository
	images   ports.ImageStore
	queue    ports.Enqueuer
	allowed  map[string]struct{}
	maxBytes int64
	log      *slog.Logger
}

func New(repo ports.JobRepository, images ports.ImageStore, queue ports.Enqueuer, allowedTypes []string, maxBytes int64, log *slog.Logger) *Service {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}
	return &Service{
		repo:     repo,
		images:   images,
		queue:    queue,
		allowed:  allowed,
		maxBytes: maxBytes,
		log:      log,
	}
}

// Result is what a caller gets back from Submit. The job is accepted, not
// finished; its outcome is available later through the query service.
type Result struct {
	JobID     uuid.UUID
	Status    domain.Status
	CreatedAt time.Time
}

// Submit validates the upload, stores it under a fresh key, and creates the
// job record before enqueueing. Ordering matters: a record without a queue
// entry is swept back in later, while a queue entry without a record would
// never resolve.
func (s *Service) Submit(ctx context.Context, contentType string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, domain.Invalidf("empty upload")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Result{}, domain.Invalidf("upload exceeds %d bytes", s.maxBytes)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if _, ok := s.allowed[contentType]; !ok {
		return Result{}, domain.Invalidf("unsupported content type %q", contentType)
	}
	ext, ok := extByType[contentType]
	if !ok {
		return Result{}, domain.Invalidf("unsupported content type %q", contentType)
	}

	key := fmt.Sprintf("%s.%s", uuid.NewString(), ext)
	if err := s.images.Put(ctx, key, data, contentType); err != nil {
		return Result{}, fmt.Errorf("store image: %w", err)
	}

	job, err := s.repo.Create(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.enqueue(ctx, job.ID); err != nil {
		// The record is durable; the sweeper will requeue it. The client
		// still gets a valid job id.
		s.log.Error("enqueue failed after retries, leaving job for sweeper", "job_id", job.ID, "err", err)
	}

	return Result{JobID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt}, nil
}

func (s *Service) enqueue(ctx context.Context, jobID uuid.UUID) error {
	var err error
	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = s.queue.Enqueue(ctx, jobID); err == nil {
			return nil
		}
	}
	return err
}

// Sweep requeues jobs that are still non-terminal but have not been touched
// for olderThan. It backstops lost queue entries and crashed workers; the
// conditional transition in the worker makes a duplicate delivery harmless.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ids, err := s.repo.ListStale(ctx, domain.NonTerminalStatuses(), olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}
	requeued := 0
	for _, id := range ids {
		if err := s.queue.Enqueue(ctx, id); err != nil {
			s.log.Error("sweeper requeue failed", "job_id", id, "err", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.log.Info("sweeper requeued stale jobs", "count", requeued)
	}
	return requeued, nil
}

// RunSweeper runs Sweep on a ticker until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval, olderThan time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, olderThan, limit); err != nil {
				s.log.Error("sweep failed", "err", err)
			}
		}
	}
}
