package recognizer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/testsupport"
)

func TestRunDrainsQueueAndAcks(t *testing.T) {
	store := openStore(t)
	images := testsupport.NewImageStore()
	engine := &testsupport.StubEngine{Candidates: []domain.Candidate{{Text: "ABC1234", Confidence: 0.9}}}
	proc := newProcessor(store, images, engine)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		job := submitJob(t, store, images)
		if err := store.Enqueue(ctx, job.ID); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		jobs = append(jobs, job.ID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, store, proc, 2, 10*time.Millisecond, testLogger())
	}()

	deadline := time.Now().Add(5 * time.Second)
	for _, id := range jobs {
		for {
			job, err := store.Get(context.Background(), id)
			if err != nil {
				t.Fatalf("get %s: %v", id, err)
			}
			if job.Status == domain.StatusCompleted {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job %s stuck in %s", id, job.Status)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	<-done

	if engine.Calls() != 3 {
		t.Fatalf("engine ran %d times, want 3", engine.Calls())
	}

	// Every delivery was acked, so nothing is left to claim.
	if _, found, err := store.Dequeue(context.Background()); err != nil || found {
		t.Fatalf("queue should be empty after the run, found=%v err=%v", found, err)
	}
}
