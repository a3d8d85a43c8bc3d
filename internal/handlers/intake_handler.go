package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"intake-service/internal/middleware"
	"intake-service/internal/models"
	"intake-service/internal/services"
)

const headerReplayed = "Idempotent-Replayed"

// IntakeSubmitter is the service behind the intake routes
type IntakeSubmitter interface {
	SubmitAppointment(ctx context.Context, req *models.AppointmentRequest, meta models.SubmissionMeta) (*models.SubmissionOutcome, error)
	Subscribe(ctx context.Context, sub *models.NewsletterSubscription, meta models.SubmissionMeta) (*models.SubmissionOutcome, error)
}

// IntakeHandler handles appointment and newsletter submissions
type IntakeHandler struct {
	intake IntakeSubmitter
}

// NewIntakeHandler creates a new intake handler
func NewIntakeHandler(intake IntakeSubmitter) *IntakeHandler {
	return &IntakeHandler{intake: intake}
}

// SubmitAppointment handles POST /api/contact
func (h *IntakeHandler) SubmitAppointment(c *gin.Context) {
	var req models.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, services.NewValidationError(services.MsgInvalidPayload))
		return
	}

	outcome, err := h.intake.SubmitAppointment(c.Request.Context(), &req, submissionMeta(c))
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	if outcome != nil && outcome.Replayed {
		c.Header(headerReplayed, "true")
	}
	SuccessResponse(c)
}

// Subscribe handles POST /api/subscribe
func (h *IntakeHandler) Subscribe(c *gin.Context) {
	var sub models.NewsletterSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		ErrorResponse(c, services.NewValidationError(services.MsgInvalidPayload))
		return
	}

	outcome, err := h.intake.Subscribe(c.Request.Context(), &sub, submissionMeta(c))
	if err != nil {
		ErrorResponse(c, err)
		return
	}

	if outcome != nil && outcome.Replayed {
		c.Header(headerReplayed, "true")
	}
	SuccessResponse(c)
}

func submissionMeta(c *gin.Context) models.SubmissionMeta {
	return models.SubmissionMeta{
		RequestID:      c.GetString(middleware.ContextRequestID),
		RemoteIP:       c.ClientIP(),
		IdempotencyKey: c.GetHeader(middleware.HeaderIdempotencyKey),
	}
}
