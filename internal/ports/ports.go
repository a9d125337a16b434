package ports

import (
	"context"
	"image"

	"platescan/internal/domain"
)

// ImageStore is keyed blob storage for the uploaded images. Implementations
// may back onto local disk, S3 or anything else; the core only needs put/get
// by key.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the stored bytes or domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Engine extracts text candidates from a preprocessed image, ordered by the
// engine's own reading order. Confidence is in [0,1].
type Engine interface {
	ExtractText(ctx context.Context, img image.Image) ([]domain.Candidate, error)
}
