package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meetscribe/api/internal/client"
	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/internal/websocket"
)

// MinutesWorker turns a finished transcript into meeting minutes. The
// transcript is already persisted on the job record, so the task payload
// only carries the presentation choices.
type MinutesWorker struct {
	jobs      *service.JobService
	generator client.TextGenerator
	hub       *websocket.Hub
}

// NewMinutesWorker creates a new minutes generation worker
func NewMinutesWorker(jobs *service.JobService, generator client.TextGenerator, hub *websocket.Hub) *MinutesWorker {
	return &MinutesWorker{
		jobs:      jobs,
		generator: generator,
		hub:       hub,
	}
}

// ProcessTask handles minutes:generate tasks.
func (w *MinutesWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.MinutesTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting minutes generation for job: %s", jobID)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("Minutes job %s not found, skipping", jobID)
		return nil
	}

	if job.Status == model.StatusCancelled {
		w.jobs.NoteCancelled(ctx, jobID, "Cancelled before minutes generation started")
		return nil
	}
	if !job.HasTranscript() {
		w.failJob(ctx, jobID, "No transcript available for minutes generation")
		return nil
	}

	instruction, ok := payload.Tone.Instruction()
	if !ok {
		w.failJob(ctx, jobID, fmt.Sprintf("Unknown minutes tone: %s", payload.Tone))
		return nil
	}

	if err := w.jobs.SetProgress(ctx, jobID, 0, "Generating meeting minutes..."); err != nil {
		return err
	}
	w.broadcastProgress(ctx, jobID)

	var minutes string
	if w.generator.IsConfigured() {
		minutes, err = w.generator.GenerateText(ctx, instruction,
			buildMinutesPrompt(&payload, job.FullTranscript))
		if err != nil {
			if stopped := w.checkCancelled(ctx, jobID); stopped {
				return nil
			}
			w.failJob(ctx, jobID, fmt.Sprintf("Minutes generation failed: %v", err))
			return err
		}
	} else {
		minutes = w.mockMinutes(ctx, &payload)
	}

	if stopped := w.checkCancelled(ctx, jobID); stopped {
		return nil
	}

	if err := w.jobs.CompleteMinutes(ctx, jobID, minutes); err != nil {
		w.failJob(ctx, jobID, "Failed to save meeting minutes")
		return err
	}

	w.broadcastComplete(ctx, jobID)
	log.Printf("Minutes generation for job %s completed", jobID)
	return nil
}

// buildMinutesPrompt assembles the user-facing part of the request: optional
// meeting metadata followed by the full transcript.
func buildMinutesPrompt(payload *service.MinutesTaskPayload, transcript string) string {
	var b strings.Builder
	if payload.Title != "" {
		fmt.Fprintf(&b, "Meeting title: %s\n", payload.Title)
	}
	if payload.MeetingDate != "" {
		fmt.Fprintf(&b, "Meeting date: %s\n", payload.MeetingDate)
	}
	if payload.MeetingTime != "" {
		fmt.Fprintf(&b, "Meeting time: %s\n", payload.MeetingTime)
	}
	b.WriteString("Generate meeting minutes from the following transcript:\n")
	b.WriteString(transcript)
	return b.String()
}

func (w *MinutesWorker) checkCancelled(ctx context.Context, jobID string) bool {
	cancelled, err := w.jobs.IsCancelled(context.WithoutCancel(ctx), jobID)
	if err != nil || !cancelled {
		return false
	}
	w.jobs.NoteCancelled(context.WithoutCancel(ctx), jobID, "Cancelled during minutes generation")
	log.Printf("Minutes generation for job %s cancelled", jobID)
	return true
}

func (w *MinutesWorker) mockMinutes(ctx context.Context, payload *service.MinutesTaskPayload) string {
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}
	title := payload.Title
	if title == "" {
		title = "Meeting"
	}
	return fmt.Sprintf("# %s\n\n## Attendees\n- Speaker 1\n- Speaker 2\n\n## Summary\n[mock meeting minutes]\n", title)
}

func (w *MinutesWorker) failJob(ctx context.Context, jobID, cause string) {
	if err := w.jobs.FailJob(context.WithoutCancel(ctx), jobID, cause); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "MINUTES_FAILED", cause)
	}
}

func (w *MinutesWorker) broadcastProgress(ctx context.Context, jobID string) {
	if w.hub == nil {
		return
	}
	job, err := w.jobs.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return
	}
	w.hub.BroadcastProgress(jobID, job.Status, job.Phase, job.ProgressPercent, job.ProgressText)
}

func (w *MinutesWorker) broadcastComplete(ctx context.Context, jobID string) {
	if w.hub == nil {
		return
	}
	job, err := w.jobs.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return
	}
	w.hub.BroadcastComplete(jobID, model.NewJobDetail(job))
}
