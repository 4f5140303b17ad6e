package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/meetscribe/api/internal/middleware"
	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/pkg/response"
)

type MinutesHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewMinutesHandler(svc *service.JobService, v *validator.Validate) *MinutesHandler {
	return &MinutesHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/generate-minutes/:jobId
// @Summary      Generate meeting minutes
// @Description  Start asynchronous minutes generation from a finished transcript
// @Tags         Minutes
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.MinutesRequest true "Minutes generation request"
// @Success      202 {object} model.JobSummary
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate-minutes/{jobId} [post]
func (h *MinutesHandler) Generate(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.MinutesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !req.Tone.Valid() {
		return response.ValidationError(c, "Unknown tone", map[string]interface{}{
			"tone":     req.Tone,
			"accepted": model.ValidTones,
		})
	}

	if _, err := h.service.GetOwnedJob(c.Context(), jobID, middleware.GetUserID(c)); err != nil {
		return serviceError(c, err)
	}

	job, err := h.service.RequestMinutes(c.Context(), jobID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	return response.Accepted(c, model.NewJobSummary(job))
}
