package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/streamcred/streamcred/internal/account/domain"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal       = errors.New("internal_error")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ingestdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ingestdomain.ErrStaleTimestamp):
		// Freshness failures are authentication failures: a stale
		// timestamp means the delivery cannot be trusted as current.
		return http.StatusUnauthorized, errorPayload{
			Type:    "stale_timestamp",
			Message: "webhook timestamp outside allowed window",
		}
	case errors.Is(err, ingestdomain.ErrInvalidPayload),
		errors.Is(err, ingestdomain.ErrInvalidEvent),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_payload",
			Message: "webhook payload could not be parsed",
		}
	case errors.Is(err, ingestdomain.ErrProviderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "unknown provider",
		}
	case errors.Is(err, accountdomain.ErrCreditUnavailable):
		return http.StatusInternalServerError, errorPayload{
			Type:    "credit_unavailable",
			Message: "credit temporarily unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog labels request errors for the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusUnauthorized:
		return "auth_error", payload.Type
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return "validation_error", payload.Type
	default:
		return "internal_error", payload.Type
	}
}
