// Package tesseract adapts gosseract to the recognition engine port.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"platescan/internal/domain"
)

const charWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Engine runs OCR through a per-call gosseract client. Clients are cheap
// relative to recognition and are not safe for concurrent reuse.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New builds an engine with the given language hints (defaults to eng).
func New(languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{languages: languages, clientFactory: gosseract.NewClient}
}

// ExtractText recognizes the normalized image and returns word-level
// candidates ordered by confidence, highest first.
func (e *Engine) ExtractText(ctx context.Context, img image.Image) ([]domain.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetWhitelist(charWhitelist); err != nil {
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Text:       word,
			Confidence: b.Confidence / 100.0,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}
