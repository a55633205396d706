package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	pid := profileID(r)
	windows, err := h.schedules.Windows(r.Context(), pid)
	if err != nil {
		h.fail(w, r, "get availability", err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleToJSON(pid, windows))
}

type setAvailabilityResponse struct {
	Message  string        `json:"message"`
	Warnings []warningJSON `json:"warnings,omitempty"`
	Summary  *summaryJSON  `json:"summary,omitempty"`
}

// SetAvailability replaces the caller's weekly schedule. Every window is
// validated first, overlaps within a weekday included, so an invalid
// schedule is never stored.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	windows, analysis, err := decodeSchedule(r)
	if err != nil {
		h.fail(w, r, "set availability", err)
		return
	}
	pid := profileID(r)
	if err := h.schedules.Replace(r.Context(), pid, windows); err != nil {
		h.fail(w, r, "set availability", err)
		return
	}
	h.logger.Info("schedule replaced", "provider_id", pid, "windows", len(windows))

	warnings, summary := analysisToJSON(analysis)
	writeJSON(w, http.StatusOK, setAvailabilityResponse{
		Message:  "Availability updated successfully",
		Warnings: warnings,
		Summary:  &summary,
	})
}

// PreviewAvailability runs the same validation and analysis as
// SetAvailability without storing anything.
func (h *Handler) PreviewAvailability(w http.ResponseWriter, r *http.Request) {
	_, analysis, err := decodeSchedule(r)
	if err != nil {
		h.fail(w, r, "preview availability", err)
		return
	}
	warnings, summary := analysisToJSON(analysis)
	writeJSON(w, http.StatusOK, setAvailabilityResponse{
		Message:  "Schedule is valid",
		Warnings: warnings,
		Summary:  &summary,
	})
}

func decodeSchedule(r *http.Request) ([]model.AvailabilityWindow, slots.Analysis, error) {
	var body scheduleJSON
	if err := decodeJSON(r, &body); err != nil {
		return nil, slots.Analysis{}, err
	}
	windows, err := parseSchedule(body.Schedule)
	if err != nil {
		return nil, slots.Analysis{}, err
	}
	analysis, err := slots.Analyze(windows)
	if err != nil {
		return nil, slots.Analysis{}, err
	}
	return windows, analysis, nil
}

func (h *Handler) listProviderBookings(status model.BookingStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.bookings.ListForProvider(r.Context(), profileID(r), status)
		if err != nil {
			h.fail(w, r, "list "+string(status)+" bookings", err)
			return
		}
		writeJSON(w, http.StatusOK, detailsToJSON(list, true))
	}
}

// ListServices returns the calling provider's services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.providers.Services(r.Context(), profileID(r))
	if err != nil {
		h.fail(w, r, "list services", err)
		return
	}
	out := make([]serviceJSON, 0, len(services))
	for _, s := range services {
		out = append(out, serviceJSON{ServiceID: s.ID, Name: s.Name, Description: s.Description, Price: s.Price})
	}
	writeJSON(w, http.StatusOK, out)
}

type customerSnapshotJSON struct {
	CustomerID      string  `json:"customer_id"`
	CustomerName    string  `json:"customer_name"`
	TotalBookings   int     `json:"total_bookings"`
	TotalVisits     int     `json:"total_visits"`
	TotalSpent      float64 `json:"total_spent"`
	LastServiceDate *string `json:"last_service_date"`
	LastServiceName *string `json:"last_service_name"`
}

// CustomerSnapshot summarises a customer's history with the calling provider.
// Customers who never booked with the provider read as not found.
func (h *Handler) CustomerSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.bookings.CustomerSnapshot(r.Context(), profileID(r), chi.URLParam(r, "id"), h.checker.Today())
	if errors.Is(err, storage.ErrNotFound) {
		err = notFound("Customer not found")
	}
	if err != nil {
		h.fail(w, r, "customer snapshot", err)
		return
	}
	resp := customerSnapshotJSON{
		CustomerID:    snap.CustomerID,
		CustomerName:  snap.CustomerName,
		TotalBookings: snap.TotalBookings,
		TotalVisits:   snap.TotalVisits,
		TotalSpent:    snap.TotalSpent,
	}
	if !snap.LastServiceDate.IsZero() {
		date, name := snap.LastServiceDate.String(), snap.LastServiceName
		resp.LastServiceDate, resp.LastServiceName = &date, &name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) transition(t storage.Transition, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		b, err := h.bookings.Apply(r.Context(), id, storage.Actor{ProviderID: profileID(r)}, t)
		if err != nil {
			h.fail(w, r, "booking "+string(t.To), err)
			return
		}
		h.logger.Info("booking status changed", "booking_id", b.ID, "status", b.Status)
		writeJSON(w, http.StatusOK, messageResponse{Message: message})
	}
}

// ownedBooking loads a booking and checks it belongs to the calling provider.
func (h *Handler) ownedBooking(r *http.Request, id string) (model.Booking, error) {
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.ProviderID != profileID(r) {
		return model.Booking{}, storage.ErrNotOwner
	}
	return b, nil
}

type availableSlotsResponse struct {
	Date      string        `json:"date"`
	DayOfWeek int           `json:"day_of_week"`
	Available []sessionJSON `json:"available_slots"`
	Booked    []sessionJSON `json:"booked_slots"`
	Message   string        `json:"message,omitempty"`
}

// AvailableSlots lists one date's sessions for moving booking {id}. The
// booking itself does not count as booked.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, r, "available slots", err)
		return
	}
	b, err := h.ownedBooking(r, id)
	if err != nil {
		h.fail(w, r, "available slots", err)
		return
	}

	ds, err := h.builder.ForDate(r.Context(), reschedule.Request{ProviderID: b.ProviderID, BookingID: b.ID, Today: h.checker.Today()}, date)
	if err != nil {
		h.fail(w, r, "available slots", err)
		return
	}
	resp := availableSlotsResponse{
		Date:      ds.Date.String(),
		DayOfWeek: ds.DayOfWeek,
		Available: sessionsToJSON(ds.Available),
		Booked:    sessionsToJSON(ds.Booked),
	}
	if !ds.HasAvailability {
		resp.Message = "No availability on " + timegrid.WeekdayName(ds.DayOfWeek)
	}
	writeJSON(w, http.StatusOK, resp)
}

type rescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "reschedule", err)
		return
	}
	date, err := parseDateParam(req.Date)
	if err != nil {
		h.fail(w, r, "reschedule", err)
		return
	}
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		h.fail(w, r, "reschedule", err)
		return
	}

	check := func(windows []model.AvailabilityWindow, active []model.Booking) error {
		_, err := h.checker.Check(conflict.Request{Date: date, StartTime: req.StartTime, EndTime: req.EndTime, Exclude: id}, windows, active)
		return err
	}
	b, err := h.bookings.Reschedule(r.Context(), storage.RescheduleRequest{
		BookingID:   id,
		ProviderID:  profileID(r),
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
	}, check)
	if err != nil {
		if outcome := bookingOutcome(err); outcome != "" {
			h.metrics.ObserveBooking(outcome)
		}
		h.fail(w, r, "reschedule", err)
		return
	}
	h.metrics.ObserveBooking(metrics.OutcomeRescheduled)
	h.logger.Info("booking rescheduled", "booking_id", b.ID, "date", b.Date.String(), "start", timegrid.ToHHMM(b.StartMinute))
	writeJSON(w, http.StatusOK, bookingToJSON(b))
}

type rescheduleDayJSON struct {
	Date            string        `json:"date"`
	DayOfWeek       int           `json:"day_of_week"`
	DisplayDate     string        `json:"display_date"`
	IsToday         bool          `json:"is_today"`
	IsTomorrow      bool          `json:"is_tomorrow"`
	IsPast          bool          `json:"is_past"`
	HasAvailability bool          `json:"has_availability"`
	TotalSlots      int           `json:"total_slots"`
	AvailableCount  int           `json:"available_count"`
	Available       []sessionJSON `json:"available_slots"`
	Booked          []sessionJSON `json:"booked_slots"`
}

type rescheduleWindowResponse struct {
	BookingID string              `json:"booking_id"`
	Dates     []rescheduleDayJSON `json:"dates"`
}

// RescheduleWindow returns candidate sessions for booking_id on every date
// from start_date (default today) to end_date, capped by the horizon.
func (h *Handler) RescheduleWindow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("booking_id"))
	if id == "" {
		h.fail(w, r, "reschedule window", badRequest("booking_id is required"))
		return
	}
	var start, end timegrid.Date
	var err error
	if raw := q.Get("start_date"); raw != "" {
		if start, err = parseDateParam(raw); err != nil {
			h.fail(w, r, "reschedule window", err)
			return
		}
	}
	if raw := q.Get("end_date"); raw != "" {
		if end, err = parseDateParam(raw); err != nil {
			h.fail(w, r, "reschedule window", err)
			return
		}
	}
	b, err := h.ownedBooking(r, id)
	if err != nil {
		h.fail(w, r, "reschedule window", err)
		return
	}

	began := time.Now()
	days, err := h.builder.Build(r.Context(), reschedule.Request{
		ProviderID: b.ProviderID,
		BookingID:  b.ID,
		StartDate:  start,
		EndDate:    end,
		Today:      h.checker.Today(),
	})
	h.metrics.ObserveRescheduleBuild(time.Since(began))
	if err != nil {
		h.fail(w, r, "reschedule window", err)
		return
	}

	resp := rescheduleWindowResponse{BookingID: b.ID, Dates: make([]rescheduleDayJSON, 0, len(days))}
	for _, d := range days {
		resp.Dates = append(resp.Dates, rescheduleDayJSON{
			Date:            d.Date.String(),
			DayOfWeek:       d.DayOfWeek,
			DisplayDate:     d.DisplayDate,
			IsToday:         d.IsToday,
			IsTomorrow:      d.IsTomorrow,
			IsPast:          d.IsPast,
			HasAvailability: d.HasAvailability,
			TotalSlots:      d.TotalSlots,
			AvailableCount:  d.AvailableCount,
			Available:       sessionsToJSON(d.Available),
			Booked:          sessionsToJSON(d.Booked),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseDateParam(raw string) (timegrid.Date, error) {
	d, err := timegrid.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return timegrid.Date{}, badRequest(invalidDateDetail)
	}
	return d, nil
}

func parseRange(startHHMM, endHHMM string) (int, int, error) {
	start, err := timegrid.ToMinutes(startHHMM)
	if err != nil {
		return 0, 0, err
	}
	end, err := timegrid.ToEndMinutes(endHHMM)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
