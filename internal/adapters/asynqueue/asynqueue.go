// Package asynqueue is the Redis-backed queue transport. asynq supplies
// the at-least-once delivery, retry and deadline semantics that the
// database-backed queue provides via its claimed_until column.
package asynqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeProcessJob is the single task type carried on the queue. The payload
// holds only the job id; everything else lives on the job record.
const TypeProcessJob = "recognition:process"

type processPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Processor is the per-job recognition entrypoint the runner dispatches to.
type Processor interface {
	Process(ctx context.Context, jobID uuid.UUID) error
}

// Client publishes job ids.
type Client struct {
	client   *asynq.Client
	deadline time.Duration
}

// NewClient connects an enqueue-side client. The deadline bounds one
// processing attempt, mirroring the visibility timeout of the DB queue.
func NewClient(redisAddr string, deadline time.Duration) *Client {
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	return &Client{
		client:   asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		deadline: deadline,
	}
}

// Enqueue publishes a process task for the job id.
func (c *Client) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	payload, err := json.Marshal(processPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeProcessJob, payload)
	if _, err := c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.Timeout(c.deadline),
	); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error { return c.client.Close() }

// Runner hosts the asynq server and routes process tasks to the processor.
type Runner struct {
	server    *asynq.Server
	processor Processor
	log       *slog.Logger
}

// NewRunner configures the consumer side with the given concurrency.
func NewRunner(redisAddr string, processor Processor, concurrency int, log *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{Concurrency: concurrency},
	)
	return &Runner{server: server, processor: processor, log: log}
}

// Start runs the server until Shutdown.
func (r *Runner) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProcessJob, r.handleProcess)
	return r.server.Start(mux)
}

func (r *Runner) handleProcess(ctx context.Context, t *asynq.Task) error {
	var payload processPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads can never succeed; drop instead of retrying.
		r.log.Error("malformed queue payload", "err", err)
		return nil
	}
	if err := r.processor.Process(ctx, payload.JobID); err != nil {
		// Returning the error lets asynq redeliver after backoff.
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight tasks.
func (r *Runner) Shutdown() { r.server.Shutdown() }
