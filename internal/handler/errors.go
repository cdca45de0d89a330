package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentinel/internal/classifier"
	"sentinel/internal/models"
	"sentinel/internal/repository"
)

const (
	msgModelNotLoaded = "Model is not loaded."
	msgInvalidText    = "Invalid JSON: 'text' field missing or not a string."
	msgInvalidTexts   = "Invalid JSON: 'texts' must be a non-empty list of strings."
	msgInvalidReport  = "Invalid JSON: expect 'text' and 'report_type' strings."
	msgInference      = "Model inference failed."
	msgBatchInference = "Batch model inference failed."
	msgStore          = "Unable to save report."
	msgInternal       = "Internal server error."
	msgInvalidInput   = "Invalid request."
)

// MapError maps domain errors to an HTTP status and a client-safe message.
// The cause itself is never part of the message.
func MapError(err error) (int, string) {
	switch {
	case errors.Is(err, classifier.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, classifier.ErrModelNotLoaded):
		return http.StatusInternalServerError, msgModelNotLoaded
	case errors.Is(err, classifier.ErrBatchInference):
		return http.StatusInternalServerError, msgBatchInference
	case errors.Is(err, classifier.ErrInference):
		return http.StatusInternalServerError, msgInference
	case errors.Is(err, repository.ErrStore):
		return http.StatusInternalServerError, msgStore
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{Error: message})
}

// handleError logs err with the request id and answers with its mapping.
func (h *Handler) handleError(c *gin.Context, op string, err error) {
	status, message := MapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
	}
	respondError(c, status, message)
}
