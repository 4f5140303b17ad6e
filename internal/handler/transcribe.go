package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/meetscribe/api/internal/middleware"
	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/pkg/response"
)

type TranscribeHandler struct {
	service       *service.JobService
	validator     *validator.Validate
	maxUploadSize int64
}

func NewTranscribeHandler(svc *service.JobService, v *validator.Validate, maxUploadMB int) *TranscribeHandler {
	return &TranscribeHandler{
		service:       svc,
		validator:     v,
		maxUploadSize: int64(maxUploadMB) * 1024 * 1024,
	}
}

// Create handles POST /api/transcribe
// @Summary      Submit audio for transcription
// @Description  Upload an audio recording and start an asynchronous transcription job
// @Tags         Transcribe
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Audio file (WAV, MP3, M4A, AAC, OGG, FLAC, WEBM; max 200MB)"
// @Success      202 {object} model.JobSummary
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcribe [post]
func (h *TranscribeHandler) Create(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > h.maxUploadSize {
		return response.ValidationError(c, "File size exceeds upload limit", map[string]interface{}{
			"maxSize":  h.maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"audio/wav":    true,
		"audio/x-wav":  true,
		"audio/wave":   true,
		"audio/mpeg":   true,
		"audio/mp3":    true,
		"audio/mp4":    true,
		"audio/x-m4a":  true,
		"audio/aac":    true,
		"audio/x-aac":  true,
		"audio/ogg":    true,
		"audio/flac":   true,
		"audio/webm":   true,
		"video/webm":   true,
		"video/mp4":    true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: WAV, MP3, M4A, AAC, OGG, FLAC, WEBM", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	job, err := h.service.CreateJob(c.Context(), userID, file.Filename, f)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, model.NewJobSummary(job))
}

// Status handles GET /api/transcribe/status/:jobId
// @Summary      Get transcription job status
// @Description  Get the current status, progress and results of a job
// @Tags         Transcribe
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobDetail
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcribe/status/{jobId} [get]
func (h *TranscribeHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetOwnedJob(c.Context(), jobID, middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.NewJobDetail(job))
}

// Jobs handles GET /api/transcribe/jobs
// @Summary      List transcription jobs
// @Description  List the caller's jobs, newest first
// @Tags         Transcribe
// @Produce      json
// @Success      200 {array} model.JobSummary
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcribe/jobs [get]
func (h *TranscribeHandler) Jobs(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, err)
	}

	summaries := make([]model.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, model.NewJobSummary(job))
	}
	return response.OK(c, summaries)
}

// Cancel handles POST /api/transcribe/jobs/:jobId/cancel
// @Summary      Cancel a transcription job
// @Description  Request cooperative cancellation of a pending or running job
// @Tags         Transcribe
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobSummary
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcribe/jobs/{jobId}/cancel [post]
func (h *TranscribeHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if _, err := h.service.GetOwnedJob(c.Context(), jobID, middleware.GetUserID(c)); err != nil {
		return serviceError(c, err)
	}

	job, err := h.service.CancelJob(c.Context(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, model.NewJobSummary(job))
}

// Delete handles DELETE /api/transcribe/jobs/:jobId
// @Summary      Delete a transcription job
// @Description  Delete a job record along with its stored audio and artifacts
// @Tags         Transcribe
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      204 "No Content"
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcribe/jobs/{jobId} [delete]
func (h *TranscribeHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if middleware.IsAdmin(c) {
		if _, err := h.service.GetJob(c.Context(), jobID); err != nil {
			return serviceError(c, err)
		}
	} else if _, err := h.service.GetOwnedJob(c.Context(), jobID, middleware.GetUserID(c)); err != nil {
		return serviceError(c, err)
	}

	if err := h.service.DeleteJob(c.Context(), jobID); err != nil {
		return serviceError(c, err)
	}

	return response.NoContent(c)
}
