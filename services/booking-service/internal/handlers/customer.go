package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

const idempotencyHeader = "Idempotency-Key"

type serviceJSON struct {
	ServiceID   string  `json:"service_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type providerJSON struct {
	ProviderID      string        `json:"provider_id"`
	ProviderName    string        `json:"provider_name"`
	BusinessName    string        `json:"business_name"`
	Bio             string        `json:"bio"`
	ProviderAddress string        `json:"provider_address"`
	Services        []serviceJSON `json:"services"`
}

func (h *Handler) SearchProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	found, err := h.providers.Search(r.Context(), strings.TrimSpace(q.Get("name")), strings.TrimSpace(q.Get("provider_id")))
	if err != nil {
		h.fail(w, r, "search providers", err)
		return
	}
	out := make([]providerJSON, 0, len(found))
	for _, p := range found {
		pj := providerJSON{
			ProviderID:      p.ID,
			ProviderName:    p.ProviderName,
			BusinessName:    p.BusinessName,
			Bio:             p.Bio,
			ProviderAddress: p.ProviderAddress,
			Services:        make([]serviceJSON, 0, len(p.Services)),
		}
		for _, s := range p.Services {
			pj.Services = append(pj.Services, serviceJSON{ServiceID: s.ID, Name: s.Name, Description: s.Description, Price: s.Price})
		}
		out = append(out, pj)
	}
	writeJSON(w, http.StatusOK, out)
}

// activeProvider resolves {id} to an active provider or a 404.
func (h *Handler) activeProvider(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	ok, err := h.providers.ActiveProvider(r.Context(), id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", notFound("Provider not found")
	}
	return id, nil
}

type providerAvailabilityResponse struct {
	Available []sessionJSON `json:"available_slots"`
}

// ProviderAvailability lists the open sessions of one provider on one date.
func (h *Handler) ProviderAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, r, "provider availability", err)
		return
	}
	pid, err := h.activeProvider(r)
	if err != nil {
		h.fail(w, r, "provider availability", err)
		return
	}
	windows, err := h.schedules.Windows(r.Context(), pid)
	if err != nil {
		h.fail(w, r, "provider availability", err)
		return
	}
	active, err := h.bookings.ActiveBookings(r.Context(), pid, date)
	if err != nil {
		h.fail(w, r, "provider availability", err)
		return
	}
	day, err := availability.Reconcile(date, windows, active, h.policy)
	if err != nil {
		h.fail(w, r, "provider availability", err)
		return
	}
	h.reportFaults(pid, day)
	writeJSON(w, http.StatusOK, providerAvailabilityResponse{Available: sessionsToJSON(day.Available)})
}

type calendarDayJSON struct {
	Date                string  `json:"date"`
	Status              string  `json:"status"`
	AvailablePercentage float64 `json:"available_percentage"`
}

// ProviderCalendar returns the day status of every date in a month.
func (h *Handler) ProviderCalendar(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	month, errM := strconv.Atoi(chi.URLParam(r, "month"))
	if errY != nil || errM != nil || year < 1 || year > 9999 {
		h.fail(w, r, "provider calendar", badRequest("Invalid year or month"))
		return
	}
	first, last, err := timegrid.MonthRange(year, time.Month(month))
	if err != nil {
		h.fail(w, r, "provider calendar", badRequest("Invalid year or month"))
		return
	}
	pid, err := h.activeProvider(r)
	if err != nil {
		h.fail(w, r, "provider calendar", err)
		return
	}
	windows, err := h.schedules.Windows(r.Context(), pid)
	if err != nil {
		h.fail(w, r, "provider calendar", err)
		return
	}
	active, err := h.bookings.ActiveBookingsBetween(r.Context(), pid, first, last)
	if err != nil {
		h.fail(w, r, "provider calendar", err)
		return
	}
	days, err := availability.Month(year, time.Month(month), windows, active, h.policy)
	if err != nil {
		h.fail(w, r, "provider calendar", err)
		return
	}

	out := make([]calendarDayJSON, 0, len(days))
	for _, d := range days {
		h.reportFaults(pid, d)
		ds := d.DayStatus()
		out = append(out, calendarDayJSON{Date: ds.Date.String(), Status: string(ds.Status), AvailablePercentage: ds.AvailablePercentage})
	}
	writeJSON(w, http.StatusOK, out)
}

type createBookingRequest struct {
	ProviderID string `json:"provider_id"`
	ServiceID  string `json:"service_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type createBookingResponse struct {
	Message   string `json:"message"`
	BookingID string `json:"booking_id"`
}

// CreateBooking requests a pending booking of one session. A repeated
// Idempotency-Key from the same customer replays the first result.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "create booking", err)
		return
	}
	if req.ProviderID == "" || req.ServiceID == "" || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		h.fail(w, r, "create booking", badRequest("provider_id, service_id, date, start_time and end_time are required"))
		return
	}
	date, err := parseDateParam(req.Date)
	if err != nil {
		h.fail(w, r, "create booking", err)
		return
	}
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		h.fail(w, r, "create booking", err)
		return
	}
	svc, err := h.providers.Service(r.Context(), req.ProviderID, req.ServiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = notFound("Service not found")
		}
		h.fail(w, r, "create booking", err)
		return
	}

	check := func(windows []model.AvailabilityWindow, active []model.Booking) error {
		_, err := h.checker.Check(conflict.Request{Date: date, StartTime: req.StartTime, EndTime: req.EndTime}, windows, active)
		return err
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	res, err := h.bookings.Create(r.Context(), model.Booking{
		ProviderID:  req.ProviderID,
		CustomerID:  profileID(r),
		ServiceID:   svc.ID,
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
		Status:      model.StatusPending,
		Cost:        svc.Price,
	}, key, check)
	if err != nil {
		if outcome := bookingOutcome(err); outcome != "" {
			h.metrics.ObserveBooking(outcome)
		}
		h.fail(w, r, "create booking", err)
		return
	}

	if res.Replayed {
		h.metrics.ObserveBooking(metrics.OutcomeReplayed)
		w.Header().Set("Idempotent-Replayed", "true")
	} else {
		h.metrics.ObserveBooking(metrics.OutcomeCreated)
		h.logger.Info("booking created", "booking_id", res.Booking.ID, "provider_id", res.Booking.ProviderID, "date", date.String())
	}
	writeJSON(w, http.StatusCreated, createBookingResponse{
		Message:   "Booking request created successfully",
		BookingID: res.Booking.ID,
	})
}

func (h *Handler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.ListForCustomer(r.Context(), profileID(r))
	if err != nil {
		h.fail(w, r, "list customer bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, detailsToJSON(list, false))
}

// CancelBooking cancels one of the caller's bookings. Another customer's
// booking reads as not found.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := h.bookings.Apply(r.Context(), id, storage.Actor{CustomerID: profileID(r)}, storage.CustomerCancel)
	if errors.Is(err, storage.ErrNotOwner) {
		err = storage.ErrNotFound
	}
	if err != nil {
		h.fail(w, r, "cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Booking cancelled successfully"})
}
