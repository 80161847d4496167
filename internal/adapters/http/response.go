package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/domain"
)

// Error codes of the REST envelope.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeUsageLimit   = "USAGE_LIMIT"
	CodeRoomFull     = "ROOM_FULL"
	CodeRoomClosed   = "ROOM_CLOSED"
	CodeInternal     = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

// handleServiceError maps domain errors onto HTTP statuses.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		fail(c, http.StatusNotFound, CodeNotFound, "Room not found")
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid API key")
	case errors.Is(err, domain.ErrUsageLimit):
		fail(c, http.StatusPaymentRequired, CodeUsageLimit, err.Error())
	case errors.Is(err, domain.ErrRoomFull):
		fail(c, http.StatusConflict, CodeRoomFull, "Room is full")
	case errors.Is(err, domain.ErrRoomClosed):
		fail(c, http.StatusConflict, CodeRoomClosed, "Room is closed")
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unhandled error")
		fail(c, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	}
}
