package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meetscribe/api/internal/joberr"
	"github.com/meetscribe/api/internal/model"
)

// MemoryJobStore is an in-process JobStore used by tests and by local
// development runs without Redis. Semantics mirror RedisJobStore.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]model.TranscriptionJob
	active map[string]string // ownerID -> jobID
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]model.TranscriptionJob),
		active: make(map[string]string),
	}
}

func (s *MemoryJobStore) Upsert(_ context.Context, job *model.TranscriptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, joberr.ErrJobNotFound
	}
	out := job
	return &out, nil
}

func (s *MemoryJobStore) ListByOwner(_ context.Context, ownerID string) ([]*model.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*model.TranscriptionJob
	for _, job := range s.jobs {
		if job.OwnerID == ownerID {
			out := job
			jobs = append(jobs, &out)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryJobStore) ListByOwnerAndStatus(ctx context.Context, ownerID string, statuses ...model.JobStatus) ([]*model.TranscriptionJob, error) {
	all, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var jobs []*model.TranscriptionJob
	for _, job := range all {
		for _, st := range statuses {
			if job.Status == st {
				jobs = append(jobs, job)
				break
			}
		}
	}
	return jobs, nil
}

func (s *MemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryJobStore) AcquireActive(_ context.Context, ownerID, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.active[ownerID]; held {
		return false, nil
	}
	s.active[ownerID] = jobID
	return true, nil
}

func (s *MemoryJobStore) ReleaseActive(_ context.Context, ownerID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[ownerID] == jobID {
		delete(s.active, ownerID)
	}
	return nil
}
