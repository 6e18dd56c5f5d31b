package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"uniquify-worker/pkg/models"
)

// MemoryStore keeps batch records for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.BatchJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.BatchJob)}
}

func (s *MemoryStore) Insert(_ context.Context, job models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("insert batch %s: already exists", job.ID)
	}
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("update batch %s: %w", job.ID, ErrNotFound)
	}
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.BatchJob{}, fmt.Errorf("get batch %s: %w", id, ErrNotFound)
	}
	return clone(job), nil
}

// List returns up to limit batches, newest first. limit <= 0 means all.
func (s *MemoryStore) List(_ context.Context, limit int) ([]models.BatchJob, error) {
	s.mu.RLock()
	out := make([]models.BatchJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, clone(j))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
