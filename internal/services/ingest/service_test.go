package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"platescan/internal/adapters/sqlite"
	"platescan/internal/domain"
	"platescan/internal/ports"
	"platescan/internal/testsupport"
)

// flakyQueue fails the first failures calls to Enqueue and records every
// accepted job id.
type flakyQueue struct {
	mu       sync.Mutex
	failures int
	enqueued []uuid.UUID
}

func (q *flakyQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures > 0 {
		q.failures--
		return errors.New("queue unavailable")
	}
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

func (q *flakyQueue) ids() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, len(q.enqueued))
	copy(out, q.enqueued)
	return out
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), time.Minute)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newService(t *testing.T, store *sqlite.Store, queue ports.Enqueuer) (*Service, *testsupport.ImageStore) {
	t.Helper()
	images := testsupport.NewImageStore()
	svc := New(store, images, queue, []string{"image/png", "image/jpeg"}, 1<<20, slog.New(slog.DiscardHandler))
	return svc, images
}

func TestSubmitCreatesRecordAndEnqueues(t *testing.T) {
	store := openStore(t)
	queue := &flakyQueue{}
	svc, images := newService(t, store, queue)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "image/png", testsupport.PNG(32, 16))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != domain.StatusNotStarted {
		t.Fatalf("status = %s, want NOT_STARTED", res.Status)
	}
	if res.CreatedAt.IsZero() {
		t.Fatal("created_at should be set")
	}

	job, err := store.Get(ctx, res.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := images.Get(ctx, job.ImageKey); err != nil {
		t.Fatalf("image not stored under %q: %v", job.ImageKey, err)
	}
	if ids := queue.ids(); len(ids) != 1 || ids[0] != res.JobID {
		t.Fatalf("queue got %v, want [%s]", ids, res.JobID)
	}
}

func TestSubmitRejectsUnsupportedType(t *testing.T) {
	store := openStore(t)
	svc, _ := newService(t, store, &flakyQueue{})

	_, err := svc.Submit(context.Background(), "application/pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, total, _ := store.List(context.Background(), 1, 10); total != 0 {
		t.Fatalf("rejected upload created %d records", total)
	}
}

func TestSubmitRejectsEmptyAndOversized(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	svc := New(store, images, &flakyQueue{}, []string{"image/png"}, 16, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "image/png", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty upload: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Submit(ctx, "image/png", make([]byte, 17)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("oversized upload: err = %v, want ErrInvalidInput", err)
	}
}

func TestSubmitSniffsMissingContentType(t *testing.T) {
	store := openStore(t)
	queue := &flakyQueue{}
	svc, _ := newService(t, store, queue)

	res, err := svc.Submit(context.Background(), "", testsupport.PNG(16, 16))
	if err != nil {
		t.Fatalf("Submit without content type: %v", err)
	}
	job, _ := store.Get(context.Background(), res.JobID)
	if want := ".png"; len(job.ImageKey) < len(want) || job.ImageKey[len(job.ImageKey)-len(want):] != want {
		t.Fatalf("image key %q should carry a png extension", job.ImageKey)
	}
}

func TestSubmitRetriesEnqueue(t *testing.T) {
	store := openStore(t)
	queue := &flakyQueue{failures: 2}
	svc, _ := newService(t, store, queue)

	res, err := svc.Submit(context.Background(), "image/png", testsupport.PNG(16, 16))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ids := queue.ids(); len(ids) != 1 || ids[0] != res.JobID {
		t.Fatalf("enqueue should succeed on the third attempt, got %v", ids)
	}
}

func TestSubmitSurvivesExhaustedEnqueueRetries(t *testing.T) {
	store := openStore(t)
	queue := &flakyQueue{failures: enqueueAttempts}
	svc, _ := newService(t, store, queue)

	res, err := svc.Submit(context.Background(), "image/png", testsupport.PNG(16, 16))
	if err != nil {
		t.Fatalf("Submit should still accept the job: %v", err)
	}
	if len(queue.ids()) != 0 {
		t.Fatal("queue should be empty after exhausted retries")
	}
	// The record exists, so the sweeper can pick it up.
	if _, err := store.Get(context.Background(), res.JobID); err != nil {
		t.Fatalf("job record missing: %v", err)
	}
}

func TestSweepRequeuesStaleJobs(t *testing.T) {
	store := openStore(t)
	queue := &flakyQueue{}
	svc, _ := newService(t, store, queue)
	ctx := context.Background()

	stale, err := store.Create(ctx, "stale.png")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := store.Create(ctx, "done.png")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Transition(ctx, done.ID, domain.NonTerminalStatuses(), domain.StatusCompleted, ports.TransitionFields{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// A negative horizon treats everything as stale without waiting.
	requeued, err := svc.Sweep(ctx, -time.Second, 100)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}
	if ids := queue.ids(); len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("queue got %v, want [%s]", ids, stale.ID)
	}
}
