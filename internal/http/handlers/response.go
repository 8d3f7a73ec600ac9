// Package handlers provides the HTTP handlers of the metering API.
//
// This file holds the shared response helpers: the error envelope, fail()
// and the translation of service errors into status codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pdfops-backend/internal/http/middleware"
	"github.com/tbourn/go-pdfops-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"insufficient_credits"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"not enough credits for this operation"`
}

// fail aborts with the error envelope. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail, used by the router for 404/405.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps a service error to its status and code. Insufficient
// credits is the one actionable failure and gets its own 402; unexpected
// errors collapse into a generic operation_failed so internals do not leak.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, "not enough credits for this operation")
	case errors.Is(err, services.ErrUnknownOperation):
		fail(c, http.StatusBadRequest, ErrCodeUnknownOperation, "unknown operation")
	case errors.Is(err, services.ErrMissingInput):
		fail(c, http.StatusBadRequest, ErrCodeMissingInput, err.Error())
	case errors.Is(err, services.ErrInvalidQuantity):
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuantity, "quantity out of range")
	case errors.Is(err, services.ErrInvalidAttributes):
		fail(c, http.StatusBadRequest, ErrCodeInvalidMetadata, err.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid status filter")
	case errors.Is(err, services.ErrUnknownPack):
		fail(c, http.StatusBadRequest, ErrCodeUnknownPack, "unknown credit pack")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "storage path not owned by user")
	case errors.Is(err, services.ErrJobNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
	case errors.Is(err, services.ErrEntryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ledger entry not found")
	case errors.Is(err, services.ErrJobFinalized):
		fail(c, http.StatusConflict, ErrCodeJobFinalized, "job already finalized with a different outcome")
	case errors.Is(err, services.ErrDuplicateReference):
		fail(c, http.StatusConflict, ErrCodeDuplicateReference, "payment reference already used")
	case errors.Is(err, services.ErrNotRefundable):
		fail(c, http.StatusConflict, ErrCodeNotRefundable, "entry is not refundable")
	case errors.Is(err, services.ErrConcurrencyConflict):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeConflict, "concurrent update, retry with the same Idempotency-Key")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeOperationFailed, "operation failed")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
