// Package store persists transcription job records.
package store

import (
	"context"

	"github.com/meetscribe/api/internal/model"
)

// JobStore is the record store the pipeline needs: id-keyed CRUD, an
// owner-scoped listing (newest first) and the atomic admission key that
// enforces one active job per owner.
type JobStore interface {
	Upsert(ctx context.Context, job *model.TranscriptionJob) error
	// Get returns joberr.ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id string) (*model.TranscriptionJob, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.TranscriptionJob, error)
	ListByOwnerAndStatus(ctx context.Context, ownerID string, statuses ...model.JobStatus) ([]*model.TranscriptionJob, error)
	Delete(ctx context.Context, id string) error

	// AcquireActive atomically claims the owner's single active-job slot for
	// jobID. Returns false when another job already holds it.
	AcquireActive(ctx context.Context, ownerID, jobID string) (bool, error)
	// ReleaseActive frees the slot, but only if jobID still holds it.
	ReleaseActive(ctx context.Context, ownerID, jobID string) error
}
