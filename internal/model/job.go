package model

import (
	"time"

	"github.com/meetscribe/api/internal/joberr"
)

// TranscriptionJob is the central record of the pipeline: one uploaded
// recording tracked from submission to a terminal outcome, plus an optional
// minutes pass afterwards.
type TranscriptionJob struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	OriginalFilename string    `json:"originalFilename"`
	StoredFileRef    string    `json:"storedFileRef,omitempty"` // local path, set only after the bytes are durably written
	ArchiveKey       string    `json:"archiveKey,omitempty"`    // object storage key when archival is configured
	Status           JobStatus `json:"status"`
	Phase            JobPhase  `json:"phase"`
	ProgressPercent  int       `json:"progressPercent"`
	ProgressText     string    `json:"progressText,omitempty"`
	FullTranscript   string    `json:"fullTranscript,omitempty"`
	MeetingMinutes   *string   `json:"meetingMinutes,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"` // append-only diagnostic log
	ExternalTaskRef  string    `json:"externalTaskRef,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// legalTransitions is the full lifecycle. COMPLETED re-enters PROCESSING for
// a minutes pass; FAILED re-enters PROCESSING only when a partial transcript
// exists (enforced by the service, not the table).
var legalTransitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusProcessing},
}

// Transition moves the job to the requested status, or reports an
// IllegalTransitionError and leaves the job untouched.
func (j *TranscriptionJob) Transition(to JobStatus) error {
	for _, next := range legalTransitions[j.Status] {
		if next == to {
			j.Status = to
			return nil
		}
	}
	return &joberr.IllegalTransitionError{From: string(j.Status), To: string(to)}
}

// Active reports whether the job counts against the one-active-job-per-owner
// admission rule.
func (j *TranscriptionJob) Active() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// AppendError adds a diagnostic line. Earlier entries are never overwritten.
func (j *TranscriptionJob) AppendError(msg string) {
	if j.ErrorMessage != "" {
		j.ErrorMessage += "\n"
	}
	j.ErrorMessage += msg
}

// AppendTranscript adds one segment's text in arrival order. Segments are
// joined with a newline, matching the order produced by the segmenter.
func (j *TranscriptionJob) AppendTranscript(text string) {
	if j.FullTranscript != "" {
		j.FullTranscript += "\n"
	}
	j.FullTranscript += text
}

// HasTranscript reports whether any transcript text was accumulated.
func (j *TranscriptionJob) HasTranscript() bool {
	return j.FullTranscript != ""
}
