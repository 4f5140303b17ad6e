package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/meetscribe/api/internal/joberr"
	"github.com/meetscribe/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// serviceError maps job service errors onto the API error envelope.
func serviceError(c *fiber.Ctx, err error) error {
	var transition *joberr.IllegalTransitionError

	switch {
	case errors.Is(err, joberr.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, joberr.ErrConflict):
		return response.Conflict(c, "Another job is already in progress")
	case errors.Is(err, joberr.ErrNotReady):
		return response.NotReady(c, "Job has no transcript to work with yet")
	case errors.As(err, &transition):
		return response.IllegalTransition(c, transition.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
