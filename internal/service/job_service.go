package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meetscribe/api/internal/client"
	"github.com/meetscribe/api/internal/joberr"
	"github.com/meetscribe/api/internal/media"
	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/store"
)

const (
	TaskTypeTranscribe = "transcribe:process"
	TaskTypeMinutes    = "minutes:generate"

	QueueTranscribe = "transcribe"
	QueueMinutes    = "minutes"

	taskRetention = 7 * 24 * time.Hour
)

// TranscribeTaskPayload is carried by a transcribe:process task.
type TranscribeTaskPayload struct {
	JobID     string `json:"jobId"`
	AudioPath string `json:"audioPath"`
}

// MinutesTaskPayload is carried by a minutes:generate task.
type MinutesTaskPayload struct {
	JobID       string     `json:"jobId"`
	Tone        model.Tone `json:"tone"`
	MeetingDate string     `json:"meetingDate,omitempty"`
	MeetingTime string     `json:"meetingTime,omitempty"`
	Title       string     `json:"title,omitempty"`
}

// TaskEnqueuer is the slice of asynq.Client the service uses.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskCanceller is the slice of asynq.Inspector the service uses to signal
// cooperative cancellation to a running worker.
type TaskCanceller interface {
	CancelProcessing(id string) error
}

// JobService owns the job lifecycle: admission, persistence, the legal
// status transitions and handoff to the worker pool. All status changes go
// through model.Transition; nothing mutates status directly.
type JobService struct {
	store     store.JobStore
	enqueuer  TaskEnqueuer
	canceller TaskCanceller        // may be nil
	archive   client.StorageClient // may be nil
	uploadDir string
}

func NewJobService(jobStore store.JobStore, enqueuer TaskEnqueuer, canceller TaskCanceller, archive client.StorageClient, uploadDir string) *JobService {
	return &JobService{
		store:     jobStore,
		enqueuer:  enqueuer,
		canceller: canceller,
		archive:   archive,
		uploadDir: uploadDir,
	}
}

// CreateJob admits a new transcription job for the owner, durably stores the
// uploaded bytes and hands the job to the worker pool. Returns
// joberr.ErrConflict when the owner already has an active job; in that case
// no record is created.
func (s *JobService) CreateJob(ctx context.Context, ownerID, filename string, file io.Reader) (*model.TranscriptionJob, error) {
	jobID := uuid.New().String()

	acquired, err := s.store.AcquireActive(ctx, ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if !acquired {
		return nil, joberr.ErrConflict
	}

	now := time.Now()
	job := &model.TranscriptionJob{
		ID:               jobID,
		OwnerID:          ownerID,
		OriginalFilename: filename,
		Status:           model.StatusPending,
		Phase:            model.PhaseTranscription,
		ProgressPercent:  0,
		ProgressText:     "Waiting for transcription to start...",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Upsert(ctx, job); err != nil {
		s.store.ReleaseActive(ctx, ownerID, jobID)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	storedPath, err := s.writeUpload(jobID, filename, file)
	if err != nil {
		s.discardJob(ctx, job)
		return nil, err
	}
	job.StoredFileRef = storedPath
	if err := s.save(ctx, job); err != nil {
		s.discardJob(ctx, job)
		return nil, err
	}

	// Archive the source recording when object storage is configured.
	// Best effort: transcription proceeds from the local copy either way.
	if s.archive != nil {
		key := fmt.Sprintf("recordings/%s/%s", jobID, filepath.Base(filename))
		if f, err := os.Open(storedPath); err == nil {
			if _, err := s.archive.Upload(ctx, key, f, "application/octet-stream"); err != nil {
				log.Printf("Warning: failed to archive recording for job %s: %v", jobID, err)
			} else {
				job.ArchiveKey = key
			}
			f.Close()
		}
	}

	payload, err := json.Marshal(&TranscribeTaskPayload{JobID: jobID, AudioPath: storedPath})
	if err != nil {
		s.discardJob(ctx, job)
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	info, err := s.enqueuer.Enqueue(asynq.NewTask(TaskTypeTranscribe, payload),
		asynq.Queue(QueueTranscribe),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		s.discardJob(ctx, job)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	job.ExternalTaskRef = info.ID
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob returns a job by id.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.TranscriptionJob, error) {
	return s.store.Get(ctx, jobID)
}

// GetOwnedJob returns a job only when it belongs to ownerID. Foreign jobs
// are indistinguishable from missing ones.
func (s *JobService) GetOwnedJob(ctx context.Context, jobID, ownerID string) (*model.TranscriptionJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, joberr.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, ownerID string) ([]*model.TranscriptionJob, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// CancelJob requests cooperative cancellation. Legal only while the job is
// PENDING or PROCESSING; the running worker observes the new status at the
// next segment boundary and any outstanding task is signalled best effort.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.TranscriptionJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := job.Transition(model.StatusCancelled); err != nil {
		return nil, err
	}
	job.ProgressText = "Cancellation requested"

	if job.ExternalTaskRef != "" && s.canceller != nil {
		if err := s.canceller.CancelProcessing(job.ExternalTaskRef); err != nil {
			log.Printf("Warning: failed to signal cancellation for job %s: %v", jobID, err)
		}
	}

	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
	return job, nil
}

// DeleteJob removes the record and reclaims the stored source file, any
// leftover segment artifacts, and the archived copy.
func (s *JobService) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Active() {
		if job.ExternalTaskRef != "" && s.canceller != nil {
			if err := s.canceller.CancelProcessing(job.ExternalTaskRef); err != nil {
				log.Printf("Warning: failed to signal cancellation for job %s: %v", jobID, err)
			}
		}
		s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
	}

	if job.StoredFileRef != "" {
		if err := os.Remove(job.StoredFileRef); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove source file for job %s: %v", jobID, err)
		}
		if err := media.RemoveArtifacts(media.WorkDirFor(job.StoredFileRef, job.ID)); err != nil {
			log.Printf("Warning: failed to remove segment artifacts for job %s: %v", jobID, err)
		}
	}
	if job.ArchiveKey != "" && s.archive != nil {
		if err := s.archive.Delete(ctx, job.ArchiveKey); err != nil {
			log.Printf("Warning: failed to delete archived recording for job %s: %v", jobID, err)
		}
	}

	return s.store.Delete(ctx, jobID)
}

// RequestMinutes validates readiness and queues a minutes pass. The job must
// be COMPLETED, or FAILED with a partial transcript, and must have transcript
// text; otherwise joberr.ErrNotReady. Re-running replaces earlier minutes.
func (s *JobService) RequestMinutes(ctx context.Context, jobID string, req *model.MinutesRequest) (*model.TranscriptionJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.StatusCompleted && job.Status != model.StatusFailed {
		return nil, joberr.ErrNotReady
	}
	if !job.HasTranscript() {
		return nil, joberr.ErrNotReady
	}

	prev := job.Status
	acquired, err := s.store.AcquireActive(ctx, job.OwnerID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if !acquired {
		return nil, joberr.ErrConflict
	}

	if err := job.Transition(model.StatusProcessing); err != nil {
		s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
		return nil, err
	}
	job.Phase = model.PhaseMinutes
	job.ProgressPercent = 0
	job.ProgressText = "Waiting to generate meeting minutes..."

	payload, err := json.Marshal(&MinutesTaskPayload{
		JobID:       jobID,
		Tone:        req.Tone,
		MeetingDate: req.MeetingDate,
		MeetingTime: req.MeetingTime,
		Title:       req.Title,
	})
	if err != nil {
		s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	info, err := s.enqueuer.Enqueue(asynq.NewTask(TaskTypeMinutes, payload),
		asynq.Queue(QueueMinutes),
		asynq.MaxRetry(0),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		job.Transition(prev)
		s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	job.ExternalTaskRef = info.ID
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// --- worker-facing mutators ---

// MarkProcessing moves a queued job into PROCESSING.
func (s *JobService) MarkProcessing(ctx context.Context, jobID, progressText string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusProcessing); err != nil {
		return err
	}
	job.ProgressPercent = 0
	job.ProgressText = progressText
	return s.save(ctx, job)
}

// SetProgress updates progress while PROCESSING. Percent never decreases.
func (s *JobService) SetProgress(ctx context.Context, jobID string, percent int, progressText string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusProcessing); err != nil {
		return err
	}
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	job.ProgressText = progressText
	return s.save(ctx, job)
}

// AppendSegment records one transcribed segment: text appended in segment
// order and progress persisted, so observers see live per-segment progress.
func (s *JobService) AppendSegment(ctx context.Context, jobID, text string, percent int, progressText string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusProcessing); err != nil {
		return err
	}
	job.AppendTranscript(text)
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	job.ProgressText = progressText
	return s.save(ctx, job)
}

// CompleteTranscription finishes the transcription pass.
func (s *JobService) CompleteTranscription(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusCompleted); err != nil {
		return err
	}
	job.ProgressPercent = 100
	job.ProgressText = "Transcription completed."
	job.ExternalTaskRef = ""
	if err := s.save(ctx, job); err != nil {
		return err
	}
	return s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
}

// CompleteMinutes finishes a minutes pass, replacing any earlier minutes.
func (s *JobService) CompleteMinutes(ctx context.Context, jobID, minutes string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusCompleted); err != nil {
		return err
	}
	job.MeetingMinutes = &minutes
	job.ProgressPercent = 100
	job.ProgressText = "Meeting minutes generated."
	job.ExternalTaskRef = ""
	if err := s.save(ctx, job); err != nil {
		return err
	}
	return s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
}

// FailJob moves the job to FAILED, appending the cause to the diagnostic
// log. Transcript accumulated so far is preserved.
func (s *JobService) FailJob(ctx context.Context, jobID, cause string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Transition(model.StatusFailed); err != nil {
		return err
	}
	job.AppendError(cause)
	job.ProgressText = "Failed"
	job.ExternalTaskRef = ""
	if err := s.save(ctx, job); err != nil {
		return err
	}
	return s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
}

// IsCancelled reports whether the job was cancelled; checked by workers at
// segment boundaries.
func (s *JobService) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == model.StatusCancelled, nil
}

// NoteCancelled updates the progress text of an already-cancelled job, e.g.
// "Cancelled after 2 of 5 segments".
func (s *JobService) NoteCancelled(ctx context.Context, jobID, progressText string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.StatusCancelled {
		return nil
	}
	job.ProgressText = progressText
	job.ExternalTaskRef = ""
	return s.save(ctx, job)
}

// save persists the job, stamping UpdatedAt.
func (s *JobService) save(ctx context.Context, job *model.TranscriptionJob) error {
	job.UpdatedAt = time.Now()
	return s.store.Upsert(ctx, job)
}

// discardJob rolls back an admission that could not be completed.
func (s *JobService) discardJob(ctx context.Context, job *model.TranscriptionJob) {
	if job.StoredFileRef != "" {
		os.Remove(job.StoredFileRef)
	}
	s.store.Delete(ctx, job.ID)
	s.store.ReleaseActive(ctx, job.OwnerID, job.ID)
}

// writeUpload durably stores the uploaded bytes under the uploads dir.
func (s *JobService) writeUpload(jobID, filename string, file io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	dst := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", jobID, filepath.Base(filename)))
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return dst, nil
}
