package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetscribe/api/internal/joberr"
	"github.com/meetscribe/api/internal/model"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryJobStore()
	_, err := s.Get(context.Background(), "no-such-job")
	if !errors.Is(err, joberr.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStore_UpsertIsolatesCaller(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	job := &model.TranscriptionJob{ID: "j1", OwnerID: "u1", Status: model.StatusPending}
	if err := s.Upsert(ctx, job); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	job.Status = model.StatusFailed

	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("stored job mutated through caller's pointer: %s", got.Status)
	}
}

func TestMemoryStore_ListByOwnerNewestFirst(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		s.Upsert(ctx, &model.TranscriptionJob{
			ID:        id,
			OwnerID:   "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	s.Upsert(ctx, &model.TranscriptionJob{ID: "other", OwnerID: "u2", CreatedAt: base})

	jobs, err := s.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if jobs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, jobs[i].ID)
		}
	}
}

func TestMemoryStore_ListByOwnerAndStatus(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	s.Upsert(ctx, &model.TranscriptionJob{ID: "a", OwnerID: "u1", Status: model.StatusPending})
	s.Upsert(ctx, &model.TranscriptionJob{ID: "b", OwnerID: "u1", Status: model.StatusCompleted})
	s.Upsert(ctx, &model.TranscriptionJob{ID: "c", OwnerID: "u1", Status: model.StatusProcessing})

	jobs, err := s.ListByOwnerAndStatus(ctx, "u1", model.StatusPending, model.StatusProcessing)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 active jobs, got %d", len(jobs))
	}
}

func TestMemoryStore_ActiveSlot(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	ok, err := s.AcquireActive(ctx, "u1", "j1")
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok, err)
	}

	ok, _ = s.AcquireActive(ctx, "u1", "j2")
	if ok {
		t.Error("second acquire for same owner should fail")
	}

	ok, _ = s.AcquireActive(ctx, "u2", "j3")
	if !ok {
		t.Error("acquire for a different owner should succeed")
	}

	// Releasing with the wrong job id must not free the slot.
	s.ReleaseActive(ctx, "u1", "j2")
	ok, _ = s.AcquireActive(ctx, "u1", "j4")
	if ok {
		t.Error("slot should still be held after mismatched release")
	}

	s.ReleaseActive(ctx, "u1", "j1")
	ok, _ = s.AcquireActive(ctx, "u1", "j4")
	if !ok {
		t.Error("slot should be free after matching release")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	s.Upsert(ctx, &model.TranscriptionJob{ID: "j1", OwnerID: "u1"})
	if err := s.Delete(ctx, "j1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "j1"); !errors.Is(err, joberr.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after delete, got %v", err)
	}
}
