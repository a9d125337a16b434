package ports

import (
	"context"

	"github.com/google/uuid"
)

// Delivery identifies one claimed queue entry. Receipt is the queue's own
// handle for the claim; Attempt counts deliveries of this entry so far.
type Delivery struct {
	Receipt int64
	JobID   uuid.UUID
	Attempt int
}

// Enqueuer is the producer half of the queue. The write path only needs
// this; transports that manage their own consumers (asynq) implement just
// Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// JobQueue is an at-least-once delivery channel for job ids with a
// visibility timeout. Dequeue claims the oldest redeliverable entry and
// hides it from other consumers for a bounded window; if the consumer does
// not Ack within that window the entry becomes redeliverable. The queue
// persists job ids only, never payloads.
type JobQueue interface {
	Enqueuer
	Dequeue(ctx context.Context) (d Delivery, found bool, err error)
	Ack(ctx context.Context, d Delivery) error
}
