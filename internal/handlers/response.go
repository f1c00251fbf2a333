package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepmind/prepmind-backend/internal/gateway"
	"github.com/prepmind/prepmind-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, services.ErrSessionNotFound):
		RespondError(c, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, services.ErrBackendUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "backend_unavailable", err)
	case errors.Is(err, gateway.ErrNotReady):
		RespondError(c, http.StatusServiceUnavailable, "gateway_not_ready", err)
	case errors.Is(err, services.ErrMalformedOutput):
		RespondError(c, http.StatusBadGateway, "malformed_output", err)
	case errors.Is(err, services.ErrEmptyCorpus):
		RespondError(c, http.StatusConflict, "empty_corpus", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
