// Package testsupport provides the in-memory collaborators the worker and
// HTTP tests run against: a map-backed image store and deterministic stub
// engines.
package testsupport

import (
	"context"
	"image"
	"sync"

	"platescan/internal/domain"
)

// ImageStore is a map-backed ports.ImageStore.
type ImageStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewImageStore returns an empty in-memory image store.
func NewImageStore() *ImageStore {
	return &ImageStore{blobs: make(map[string][]byte)}
}

func (s *ImageStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return nil
}

func (s *ImageStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

// Delete drops a key, simulating a lost blob.
func (s *ImageStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
}

// StubEngine returns fixed candidates (or a fixed error) for every image.
type StubEngine struct {
	Candidates []domain.Candidate
	Err        error

	mu    sync.Mutex
	calls int
}

func (e *StubEngine) ExtractText(ctx context.Context, img image.Image) ([]domain.Candidate, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]domain.Candidate(nil), e.Candidates...), nil
}

// Calls reports how many times the engine ran.
func (e *StubEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// PanicEngine panics on every invocation; exercises the worker's recovery.
type PanicEngine struct{}

func (PanicEngine) ExtractText(ctx context.Context, img image.Image) ([]domain.Candidate, error) {
	panic("engine exploded")
}
