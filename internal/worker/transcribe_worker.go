package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meetscribe/api/internal/client"
	"github.com/meetscribe/api/internal/media"
	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/internal/websocket"
)

// TranscribeWorker drives one job from PENDING to a terminal outcome:
// segment the source, transcribe each segment strictly in order, persist
// progress after every segment, and react to cancellation at segment
// boundaries. Segments are never fanned out; one job occupies one worker,
// which keeps transcript order trivially correct.
type TranscribeWorker struct {
	jobs        *service.JobService
	segmenter   media.AudioSegmenter
	transcriber client.Transcriber
	hub         *websocket.Hub
}

// NewTranscribeWorker creates a new transcription worker
func NewTranscribeWorker(jobs *service.JobService, segmenter media.AudioSegmenter, transcriber client.Transcriber, hub *websocket.Hub) *TranscribeWorker {
	return &TranscribeWorker{
		jobs:        jobs,
		segmenter:   segmenter,
		transcriber: transcriber,
		hub:         hub,
	}
}

// ProcessTask handles transcribe:process tasks.
func (w *TranscribeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TranscribeTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting transcription job: %s", jobID)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		// Record deleted while queued; nothing to do.
		log.Printf("Transcription job %s not found, skipping", jobID)
		return nil
	}

	// Local artifacts are reclaimed on every exit path, whatever the
	// outcome of the job.
	workDir := media.WorkDirFor(payload.AudioPath, jobID)
	defer func() {
		if err := media.RemoveArtifacts(workDir); err != nil {
			log.Printf("Warning: failed to remove segment artifacts for job %s: %v", jobID, err)
		}
		if err := os.Remove(payload.AudioPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove source file for job %s: %v", jobID, err)
		}
	}()

	// Cancelled while still queued: no transcript is ever written.
	if job.Status == model.StatusCancelled {
		w.jobs.NoteCancelled(ctx, jobID, "Cancelled before processing started")
		return nil
	}

	if err := w.jobs.MarkProcessing(ctx, jobID, "Splitting audio into segments..."); err != nil {
		return err
	}
	w.broadcastProgress(ctx, jobID)

	segments, err := w.segmenter.Segment(ctx, payload.AudioPath, workDir)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Audio segmentation failed: %v", err))
		return err
	}

	if !w.transcriber.IsConfigured() {
		return w.processWithMock(ctx, jobID, len(segments))
	}

	total := len(segments)
	for i, segmentPath := range segments {
		if stopped := w.checkCancelled(ctx, jobID, i, total); stopped {
			return nil
		}

		w.jobs.SetProgress(ctx, jobID, currentPercent(i, total),
			fmt.Sprintf("Transcribing segment %d of %d...", i+1, total))
		w.broadcastProgress(ctx, jobID)

		text, err := w.transcriber.TranscribeFile(ctx, segmentPath, media.SegmentMimeType)
		if err != nil {
			if ctx.Err() != nil {
				if stopped := w.checkCancelled(ctx, jobID, i, total); stopped {
					return nil
				}
				w.failJob(ctx, jobID, "Processing interrupted")
				return ctx.Err()
			}
			w.failJob(ctx, jobID, fmt.Sprintf("Segment %d of %d failed: %v", i+1, total, err))
			return err
		}

		percent := int(math.Round(100 * float64(i+1) / float64(total)))
		if err := w.jobs.AppendSegment(ctx, jobID, text, percent,
			fmt.Sprintf("Transcribed segment %d of %d", i+1, total)); err != nil {
			// Cancelled while this segment was in flight: the boundary is
			// the persistence point, so the in-flight text is dropped.
			if stopped := w.checkCancelled(ctx, jobID, i, total); stopped {
				return nil
			}
			w.failJob(ctx, jobID, "Failed to save transcript segment")
			return err
		}
		w.broadcastProgress(ctx, jobID)

		// Each segment file is discarded as soon as it is transcribed.
		os.Remove(segmentPath)
	}

	if err := w.jobs.CompleteTranscription(ctx, jobID); err != nil {
		w.failJob(ctx, jobID, "Failed to finalize job")
		return err
	}

	w.broadcastComplete(ctx, jobID)
	log.Printf("Transcription job %s completed (%d segments)", jobID, total)
	return nil
}

// checkCancelled observes cancellation at a segment boundary. Returns true
// when processing must stop; exactly the first completedCount segments'
// text is present in that case.
func (w *TranscribeWorker) checkCancelled(ctx context.Context, jobID string, completedCount, total int) bool {
	cancelled, err := w.jobs.IsCancelled(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return false
	}
	if !cancelled && ctx.Err() == nil {
		return false
	}
	if !cancelled {
		// Context cancelled without a job-level cancel (e.g. shutdown):
		// surface as a failure rather than silently dropping the job.
		w.failJob(ctx, jobID, "Processing interrupted")
		return true
	}

	w.jobs.NoteCancelled(context.WithoutCancel(ctx), jobID,
		fmt.Sprintf("Cancelled after %d of %d segments", completedCount, total))
	log.Printf("Transcription job %s cancelled after %d of %d segments", jobID, completedCount, total)
	return true
}

// processWithMock produces a placeholder transcript for development
// environments without an API key.
func (w *TranscribeWorker) processWithMock(ctx context.Context, jobID string, total int) error {
	for i := 0; i < total; i++ {
		if stopped := w.checkCancelled(ctx, jobID, i, total); stopped {
			return nil
		}

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}

		percent := int(math.Round(100 * float64(i+1) / float64(total)))
		text := fmt.Sprintf("Speaker 1: [mock transcript for segment %d]", i+1)
		if err := w.jobs.AppendSegment(ctx, jobID, text, percent,
			fmt.Sprintf("Transcribed segment %d of %d", i+1, total)); err != nil {
			w.failJob(ctx, jobID, "Failed to save transcript segment")
			return err
		}
		w.broadcastProgress(ctx, jobID)
	}

	if err := w.jobs.CompleteTranscription(ctx, jobID); err != nil {
		w.failJob(ctx, jobID, "Failed to finalize job")
		return err
	}
	w.broadcastComplete(ctx, jobID)
	log.Printf("Transcription job %s completed (mock)", jobID)
	return nil
}

func currentPercent(completed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

func (w *TranscribeWorker) failJob(ctx context.Context, jobID, cause string) {
	if err := w.jobs.FailJob(context.WithoutCancel(ctx), jobID, cause); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "TRANSCRIPTION_FAILED", cause)
	}
}

func (w *TranscribeWorker) broadcastProgress(ctx context.Context, jobID string) {
	if w.hub == nil {
		return
	}
	job, err := w.jobs.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return
	}
	w.hub.BroadcastProgress(jobID, job.Status, job.Phase, job.ProgressPercent, job.ProgressText)
}

func (w *TranscribeWorker) broadcastComplete(ctx context.Context, jobID string) {
	if w.hub == nil {
		return
	}
	job, err := w.jobs.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return
	}
	w.hub.BroadcastComplete(jobID, model.NewJobDetail(job))
}
