package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/service"
	"github.com/flowreels/api/pkg/response"
)

// FeedbackHandler receives the external analysis system's callback
type FeedbackHandler struct {
	service   *service.FeedbackService
	validator *validator.Validate
}

func NewFeedbackHandler(svc *service.FeedbackService, v *validator.Validate) *FeedbackHandler {
	return &FeedbackHandler{
		service:   svc,
		validator: v,
	}
}

// Ingest handles POST /webhooks/feedback. Redelivered payloads are accepted
// and acknowledged without duplicating state.
func (h *FeedbackHandler) Ingest(c *fiber.Ctx) error {
	var req model.FeedbackWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Ingest(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, "Failed to process feedback")
	}

	return response.OK(c, result)
}

// formatValidationErrors converts validator errors into field details
func formatValidationErrors(err error) map[string]interface{} {
	details := make(map[string]interface{})
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldErr := range validationErrors {
			details[fieldErr.Field()] = fieldErr.Tag()
		}
	}
	return details
}
