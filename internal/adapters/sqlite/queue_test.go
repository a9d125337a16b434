package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQueueRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	jobID := uuid.New()
	if err := store.Enqueue(ctx, jobID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d, found, err := store.Dequeue(ctx)
	if err != nil || !found {
		t.Fatalf("Dequeue: found=%v err=%v", found, err)
	}
	if d.JobID != jobID {
		t.Fatalf("job id = %s, want %s", d.JobID, jobID)
	}
	if d.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", d.Attempt)
	}

	if err := store.Ack(ctx, d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, found, err = store.Dequeue(ctx); err != nil || found {
		t.Fatalf("queue should be empty after ack: found=%v err=%v", found, err)
	}
}

func TestQueueEmpty(t *testing.T) {
	store := openTestStore(t)
	if _, found, err := store.Dequeue(context.Background()); err != nil || found {
		t.Fatalf("Dequeue on empty queue: found=%v err=%v", found, err)
	}
}

func TestQueueClaimHidesEntry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Enqueue(ctx, uuid.New()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, found, err := store.Dequeue(ctx); err != nil || !found {
		t.Fatalf("first Dequeue: found=%v err=%v", found, err)
	}
	// Claimed entry is invisible inside the visibility window.
	if _, found, err := store.Dequeue(ctx); err != nil || found {
		t.Fatalf("claimed entry redelivered early: found=%v err=%v", found, err)
	}
}

func TestQueueRedeliversAfterVisibilityTimeout(t *testing.T) {
	store := openTestStore(t) // 50ms visibility
	ctx := context.Background()

	jobID := uuid.New()
	if err := store.Enqueue(ctx, jobID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	first, found, err := store.Dequeue(ctx)
	if err != nil || !found {
		t.Fatalf("Dequeue: found=%v err=%v", found, err)
	}

	time.Sleep(80 * time.Millisecond)

	second, found, err := store.Dequeue(ctx)
	if err != nil || !found {
		t.Fatalf("redelivery Dequeue: found=%v err=%v", found, err)
	}
	if second.JobID != jobID || second.Receipt != first.Receipt {
		t.Fatalf("redelivered entry mismatch: %+v vs %+v", second, first)
	}
	if second.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", second.Attempt)
	}
}

func TestQueueOrdersOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	if err := store.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := store.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d1, _, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	d2, _, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d1.JobID != first || d2.JobID != second {
		t.Fatalf("delivery order = %s, %s; want %s, %s", d1.JobID, d2.JobID, first, second)
	}
}

func TestQueueAckUnknownReceipt(t *testing.T) {
	store := openTestStore(t)
	d, _, _ := store.Dequeue(context.Background())
	if err := store.Ack(context.Background(), d); err != nil {
		t.Fatalf("Ack of unknown receipt should be a no-op, got %v", err)
	}
}
