package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-service/internal/services"
)

// SubmissionResponse is returned for an accepted submission
type SubmissionResponse struct {
	Success bool `json:"success"`
}

// ErrorBody is returned for every failed submission
type ErrorBody struct {
	Error string   `json:"error"`
	Codes []string `json:"codes,omitempty"`
}

// SuccessResponse sends {"success": true}
func SuccessResponse(c *gin.Context) {
	c.JSON(http.StatusOK, SubmissionResponse{Success: true})
}

// ErrorResponse maps an intake error onto status and body.
// Internal detail never reaches the client.
func ErrorResponse(c *gin.Context, err error) {
	ie := services.AsIntakeError(err)
	_ = c.Error(err)
	c.JSON(ie.StatusCode(), ErrorBody{
		Error: ie.Message,
		Codes: ie.Codes,
	})
}
