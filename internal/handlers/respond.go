package handlers

import (
	"errors"
	"net/http"

	"ledger-service/internal/services"
	"ledger-service/pkg/common"

	"github.com/gin-gonic/gin"
)

// statusFor maps service sentinel errors onto HTTP status codes. Unknown
// errors are a 500 and must not leak internals to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrInsufficientHold):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyProcessed),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrChainValidation),
		errors.Is(err, services.ErrDistributionMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	var data interface{}
	if services.Retryable(err) {
		data = gin.H{"retryable": true}
	}
	c.JSON(status, common.NewErrorResponse(message, data, status))
}

// idempotencyKey reads the Idempotency-Key header; nil when absent.
func idempotencyKey(c *gin.Context) *string {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		return nil
	}
	return &key
}
