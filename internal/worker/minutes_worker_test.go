package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/internal/store"
)

// fakeGenerator records the parts it was asked to generate from.
type fakeGenerator struct {
	response string
	err      error
	parts    []string
}

func (f *fakeGenerator) GenerateText(ctx context.Context, parts ...string) (string, error) {
	f.parts = parts
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) IsConfigured() bool { return true }

func setupMinutesTest(t *testing.T, gen *fakeGenerator) (*MinutesWorker, *service.JobService, *store.MemoryJobStore, *model.TranscriptionJob) {
	t.Helper()
	jobStore := store.NewMemoryJobStore()
	svc := service.NewJobService(jobStore, &fakeEnqueuer{}, nil, nil, t.TempDir())

	job, err := svc.CreateJob(context.Background(), "u1", "meeting.wav", strings.NewReader("audio"))
	if err != nil {
		t.Fatal(err)
	}
	svc.MarkProcessing(context.Background(), job.ID, "working")
	svc.AppendSegment(context.Background(), job.ID, "Speaker 1: quarterly numbers look good", 100, "done")
	svc.CompleteTranscription(context.Background(), job.ID)

	if _, err := svc.RequestMinutes(context.Background(), job.ID, &model.MinutesRequest{
		Tone:        model.ToneFormal,
		MeetingDate: "2026-08-31",
		Title:       "Q3 Review",
	}); err != nil {
		t.Fatalf("RequestMinutes failed: %v", err)
	}

	return NewMinutesWorker(svc, gen, nil), svc, jobStore, job
}

func minutesTask(t *testing.T, jobID string, tone model.Tone) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(&service.MinutesTaskPayload{
		JobID:       jobID,
		Tone:        tone,
		MeetingDate: "2026-08-31",
		Title:       "Q3 Review",
	})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(service.TaskTypeMinutes, payload)
}

func TestMinutes_Success(t *testing.T) {
	gen := &fakeGenerator{response: "# Q3 Review\n\n## Decisions\n- ship it"}
	w, _, jobStore, job := setupMinutesTest(t, gen)

	if err := w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.ToneFormal)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	got, _ := jobStore.Get(context.Background(), job.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if got.MeetingMinutes == nil || *got.MeetingMinutes != gen.response {
		t.Errorf("minutes not saved: %v", got.MeetingMinutes)
	}
	// Transcript survives the minutes pass.
	if !strings.Contains(got.FullTranscript, "quarterly numbers") {
		t.Error("transcript lost during minutes pass")
	}

	if len(gen.parts) != 2 {
		t.Fatalf("expected instruction + prompt, got %d parts", len(gen.parts))
	}
	prompt := gen.parts[1]
	for _, want := range []string{"Q3 Review", "2026-08-31", "quarterly numbers"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestMinutes_ToneSelectsInstruction(t *testing.T) {
	formal := &fakeGenerator{response: "minutes"}
	w, _, _, job := setupMinutesTest(t, formal)
	w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.ToneFormal))

	brief := &fakeGenerator{response: "minutes"}
	w2, _, _, job2 := setupMinutesTest(t, brief)
	w2.ProcessTask(context.Background(), minutesTask(t, job2.ID, model.ToneBrief))

	if formal.parts[0] == brief.parts[0] {
		t.Error("formal and brief tones should produce different instructions")
	}
}

func TestMinutes_GenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	w, _, jobStore, job := setupMinutesTest(t, gen)

	if err := w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.ToneFormal)); err == nil {
		t.Fatal("expected generation error to propagate")
	}

	got, _ := jobStore.Get(context.Background(), job.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "Minutes generation failed") {
		t.Errorf("cause missing from error log: %q", got.ErrorMessage)
	}
	// Transcript is still usable for a retry.
	if !got.HasTranscript() {
		t.Error("transcript lost on minutes failure")
	}
}

func TestMinutes_UnknownTone(t *testing.T) {
	gen := &fakeGenerator{response: "never"}
	w, _, jobStore, job := setupMinutesTest(t, gen)

	if err := w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.Tone("SARCASTIC"))); err != nil {
		t.Fatalf("unknown tone should fail the job, not the task: %v", err)
	}

	got, _ := jobStore.Get(context.Background(), job.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if gen.parts != nil {
		t.Error("generator should not be called for an unknown tone")
	}
}

func TestMinutes_Regeneration(t *testing.T) {
	gen := &fakeGenerator{response: "first minutes"}
	w, svc, jobStore, job := setupMinutesTest(t, gen)
	if err := w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.ToneFormal)); err != nil {
		t.Fatal(err)
	}

	// Request a second pass with a different tone; minutes are replaced.
	if _, err := svc.RequestMinutes(context.Background(), job.ID, &model.MinutesRequest{Tone: model.ToneBrief}); err != nil {
		t.Fatalf("second minutes pass rejected: %v", err)
	}
	gen.response = "second minutes"
	if err := w.ProcessTask(context.Background(), minutesTask(t, job.ID, model.ToneBrief)); err != nil {
		t.Fatal(err)
	}

	got, _ := jobStore.Get(context.Background(), job.ID)
	if got.MeetingMinutes == nil || *got.MeetingMinutes != "second minutes" {
		t.Errorf("minutes not replaced: %v", got.MeetingMinutes)
	}
}
