package model

import "time"

// JobSummary is the list view of a job.
type JobSummary struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	OriginalFilename string    `json:"originalFilename"`
	Status           JobStatus `json:"status"`
	Phase            JobPhase  `json:"phase"`
	ProgressPercent  int       `json:"progressPercent"`
	ProgressText     string    `json:"progressText,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// JobDetail is the full view, including transcript, minutes and diagnostics.
type JobDetail struct {
	JobSummary
	FullTranscript string  `json:"fullTranscript,omitempty"`
	MeetingMinutes *string `json:"meetingMinutes,omitempty"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
}

// NewJobSummary builds the list view from a job record.
func NewJobSummary(j *TranscriptionJob) JobSummary {
	return JobSummary{
		ID:               j.ID,
		OwnerID:          j.OwnerID,
		OriginalFilename: j.OriginalFilename,
		Status:           j.Status,
		Phase:            j.Phase,
		ProgressPercent:  j.ProgressPercent,
		ProgressText:     j.ProgressText,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// NewJobDetail builds the detail view from a job record.
func NewJobDetail(j *TranscriptionJob) JobDetail {
	return JobDetail{
		JobSummary:     NewJobSummary(j),
		FullTranscript: j.FullTranscript,
		MeetingMinutes: j.MeetingMinutes,
		ErrorMessage:   j.ErrorMessage,
	}
}

// MinutesRequest is the body of POST /api/generate-minutes/:jobId.
type MinutesRequest struct {
	Tone        Tone   `json:"tone" validate:"required"`
	MeetingDate string `json:"meetingDate,omitempty"`
	MeetingTime string `json:"meetingTime,omitempty"`
	Title       string `json:"title,omitempty"`
}
