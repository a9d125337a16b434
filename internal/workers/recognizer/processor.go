package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/plate"
	"platescan/internal/ports"
	"platescan/internal/preprocess"
)

// Processor runs the recognition pipeline for one dequeued job id. All of
// its writes go through the repository's conditional transition, so any
// number of processors may race on the same job: exactly one terminal
// write wins, the rest no-op.
type Processor struct {
	repo      ports.JobRepository
	images    ports.ImageStore
	pipeline  *preprocess.Pipeline
	engine    ports.Engine
	validator *plate.Validator
	log       *slog.Logger
}

// NewProcessor wires the pipeline's collaborators.
func NewProcessor(repo ports.JobRepository, images ports.ImageStore, pipeline *preprocess.Pipeline, engine ports.Engine, validator *plate.Validator, log *slog.Logger) *Processor {
	return &Processor{repo: repo, images: images, pipeline: pipeline, engine: engine, validator: validator, log: log}
}

// Process takes one delivery through the state machine. A nil return means
// the delivery can be acknowledged: the job reached (or already had) a
// terminal status, or the record is gone. A non-nil return means the record
// store itself failed; the delivery stays unacked and redelivers after the
// visibility timeout.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) (err error) {
	job, err := p.repo.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("dequeued unknown job", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		// Duplicate delivery after a finished attempt.
		return nil
	}

	applied, err := p.repo.Transition(ctx, jobID, domain.NonTerminalStatuses(), domain.StatusPending, ports.TransitionFields{})
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !applied {
		// A concurrent attempt already moved the job past us.
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("recognition panicked", "job_id", jobID, "panic", r)
			err = p.fail(ctx, jobID, "internal error during recognition")
		}
	}()

	data, err := p.images.Get(ctx, job.ImageKey)
	if err != nil {
		p.log.Warn("image fetch failed", "job_id", jobID, "image_key", job.ImageKey, "err", err)
		return p.fail(ctx, jobID, "image unavailable")
	}

	img, err := p.pipeline.Run(data)
	if err != nil {
		return p.fail(ctx, jobID, fmt.Sprintf("preprocessing failed: %v", err))
	}

	candidates, err := p.engine.ExtractText(ctx, img)
	if err != nil {
		// Engine errors can carry native-library noise; keep the record
		// message generic and put the detail in the log.
		p.log.Error("recognition engine failed", "job_id", jobID, "err", err)
		return p.fail(ctx, jobID, "recognition engine failed")
	}

	fields := ports.TransitionFields{}
	if match := p.validator.Best(candidates); match != nil {
		fields.PlateNumber = &match.Text
		fields.Confidence = &match.Confidence
		p.log.Info("plate recognized", "job_id", jobID, "plate", match.Text, "pattern", match.Pattern, "confidence", match.Confidence)
	} else {
		// No pattern-conforming candidate is still a successful run.
		p.log.Info("no plate detected", "job_id", jobID, "candidates", len(candidates))
	}

	applied, err = p.repo.Transition(ctx, jobID, []domain.Status{domain.StatusPending}, domain.StatusCompleted, fields)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if !applied {
		p.log.Info("terminal write lost to concurrent attempt", "job_id", jobID)
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, message string) error {
	applied, err := p.repo.Transition(ctx, jobID,
		[]domain.Status{domain.StatusPending}, domain.StatusFailed,
		ports.TransitionFields{ErrorMessage: &message})
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if !applied {
		p.log.Info("failure write lost to concurrent attempt", "job_id", jobID)
	}
	return nil
}
