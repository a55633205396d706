package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/sessionbook/libs/httpx"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

const invalidDateDetail = "Invalid date format. Use YYYY-MM-DD"

// requestError is a failure whose status and detail are decided by the handler.
type requestError struct {
	status int
	detail string
}

func (e *requestError) Error() string { return e.detail }

func badRequest(detail string) error {
	return &requestError{status: http.StatusBadRequest, detail: detail}
}

func notFound(detail string) error {
	return &requestError{status: http.StatusNotFound, detail: detail}
}

// statusFor maps an error to its HTTP status and client-facing detail.
// Unknown errors are 500 with a generic detail.
func statusFor(err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status, re.detail
	case errors.Is(err, conflict.ErrNoAvailability):
		return http.StatusUnprocessableEntity, "Provider has no availability set"
	case errors.Is(err, conflict.ErrNotASessionBoundary):
		return http.StatusUnprocessableEntity, "Requested time is not available"
	case errors.Is(err, conflict.ErrPastDate):
		return http.StatusUnprocessableEntity, "Requested time is in the past"
	case errors.Is(err, conflict.ErrSlotAlreadyBooked):
		return http.StatusConflict, "Time slot is already booked"
	case errors.Is(err, slots.ErrOverlappingWindows):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, slots.ErrInvalidDuration),
		errors.Is(err, slots.ErrInvalidWindow),
		errors.Is(err, timegrid.ErrInvalidFormat),
		errors.Is(err, reschedule.ErrInvalidRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Booking not found"
	case errors.Is(err, storage.ErrNotOwner):
		return http.StatusForbidden, "Not authorized"
	case errors.Is(err, storage.ErrInvalidTransition):
		return http.StatusConflict, "Booking cannot be changed in its current status"
	case errors.Is(err, storage.ErrIdempotencyReuse):
		return http.StatusConflict, "Idempotency-Key was already used for another booking"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, detail := statusFor(err)
	attrs := []any{"op", op, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Debug("request rejected", append(attrs, "status", status)...)
	}
	writeDetail(w, status, detail)
}

// bookingOutcome classifies a create or reschedule result for metrics.
func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, conflict.ErrSlotAlreadyBooked):
		return metrics.OutcomeConflict
	case errors.Is(err, conflict.ErrNotASessionBoundary):
		return metrics.OutcomeNotASession
	case errors.Is(err, conflict.ErrPastDate):
		return metrics.OutcomePastDate
	default:
		return ""
	}
}

// FaultReporter logs and counts integrity faults found on read paths.
func FaultReporter(logger *slog.Logger, m *metrics.Metrics) func(providerID string, f availability.Fault) {
	return func(providerID string, f availability.Fault) {
		logger.Error("double-booked session detected",
			"provider_id", providerID,
			"date", f.Date.String(),
			"session", f.Session.String(),
			"booking_ids", f.BookingIDs,
		)
		m.ObserveIntegrityFault(providerID)
	}
}
