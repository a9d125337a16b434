// Package stubengine is a no-op recognition engine for environments without
// tesseract installed. Jobs flow through the whole pipeline and complete
// with no plate.
package stubengine

import (
	"context"
	"image"

	"platescan/internal/domain"
)

type Engine struct{}

func New() Engine { return Engine{} }

func (Engine) ExtractText(ctx context.Context, img image.Image) ([]domain.Candidate, error) {
	return nil, nil
}
