package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"roomies/internal/app/middleware"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
)

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respondError maps lifecycle errors onto HTTP statuses.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, body := classify(err)
	if logger != nil {
		fields := []any{"status", status, "error", err, "path", c.FullPath(), "request_id", c.GetString("request_id")}
		if p, ok := currentPrincipal(c); ok {
			fields = append(fields, "actor_role", p.Role, "actor_id", p.ID)
		}
		switch {
		case errors.Is(err, domainrefunds.ErrRefundExceedsPaid):
			logger.Error("settlement invariant violated", append(fields, "alert", true)...)
		case status >= 500:
			logger.Error("booking request failed", fields...)
		default:
			logger.Debug("booking request rejected", fields...)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, domainrefunds.ErrRefundExceedsPaid):
		return http.StatusInternalServerError, errorBody{Error: "please contact support"}
	case errors.Is(err, domainrooms.ErrNoSlotsAvailable):
		return http.StatusConflict, errorBody{Error: err.Error(), Retryable: true}
	case errors.Is(err, domainbooking.ErrConcurrentUpdate):
		return http.StatusConflict, errorBody{Error: err.Error(), Retryable: true}
	case errors.Is(err, domainbooking.ErrUnauthorized):
		return http.StatusForbidden, errorBody{Error: err.Error()}
	case errors.Is(err, domainbooking.ErrBookingNotFound),
		errors.Is(err, domainrooms.ErrRoomNotFound),
		errors.Is(err, domaincommissions.ErrCommissionNotFound),
		errors.Is(err, domainrefunds.ErrRefundNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error()}
	case errors.Is(err, domainbooking.ErrInvalidTransition),
		errors.Is(err, domainbooking.ErrDuplicateActiveBooking),
		errors.Is(err, middleware.ErrIdempotencyKeyReused),
		errors.Is(err, domaincommissions.ErrAlreadyPaid),
		errors.Is(err, domainrefunds.ErrAlreadyProcessed):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case isValidationError(err):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, middleware.ErrValidation),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, domainbooking.ErrInvalidDuration),
		errors.Is(err, domainbooking.ErrMoveInInPast),
		errors.Is(err, domainbooking.ErrRenterRequired):
		return true
	}
	return false
}
