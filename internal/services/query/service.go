// Package query serves the read path: single-job lookup and paginated
// listing over the job store.
package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/ports"
)

type Service struct {
	repo        ports.JobRepository
	maxPageSize int
}

func New(repo ports.JobRepository, maxPageSize int) *Service {
	return &Service{repo: repo, maxPageSize: maxPageSize}
}

// Page is one window of the job listing, newest first.
type Page struct {
	Items      []domain.RecognitionJob
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.RecognitionJob, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.RecognitionJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, domain.Invalidf("page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > s.maxPageSize {
		return Page{}, domain.Invalidf("page_size must be between 1 and %d, got %d", s.maxPageSize, pageSize)
	}

	items, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("list jobs: %w", err)
	}
	totalPages := (total + pageSize - 1) / pageSize
	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
