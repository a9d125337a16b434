// Package recognizer consumes the job queue and drives each job to a
// terminal status.
package recognizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"platescan/internal/ports"
)

// Run starts a dispatcher that claims deliveries off the queue plus
// concurrency worker goroutines, and blocks until ctx is cancelled and all
// workers have drained. Deliveries are acknowledged only after Process
// returns nil; anything else stays claimed and redelivers once its
// visibility timeout lapses.
func Run(ctx context.Context, queue ports.JobQueue, processor *Processor, concurrency int, pollInterval time.Duration, log *slog.Logger) {
	if concurrency < 1 {
		return
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	deliveries := make(chan ports.Delivery, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for d := range deliveries {
				if err := processor.Process(ctx, d.JobID); err != nil {
					log.Error("processing failed, leaving delivery for redelivery",
						"worker", idx, "job_id", d.JobID, "attempt", d.Attempt, "err", err)
					continue
				}
				// Ack with a detached context so a shutdown between finishing a
				// job and acking it does not force a redundant redelivery.
				if err := queue.Ack(context.WithoutCancel(ctx), d); err != nil {
					log.Error("ack failed", "worker", idx, "job_id", d.JobID, "err", err)
				}
			}
		}(i)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(deliveries)
			wg.Wait()
			return
		case <-ticker.C:
			for {
				d, found, err := queue.Dequeue(ctx)
				if err != nil {
					log.Error("dequeue failed", "err", err)
					break
				}
				if !found {
					break
				}
				select {
				case deliveries <- d:
				case <-ctx.Done():
					close(deliveries)
					wg.Wait()
					return
				}
			}
		}
	}
}
