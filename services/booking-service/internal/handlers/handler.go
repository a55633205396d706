// Package handlers exposes scheduling and booking over HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/sessionbook/libs/auth"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

type ScheduleStore interface {
	Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	Replace(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error
}

type BookingStore interface {
	Create(ctx context.Context, b model.Booking, idempotencyKey string, check storage.CheckFunc) (storage.CreateResult, error)
	Reschedule(ctx context.Context, req storage.RescheduleRequest, check storage.CheckFunc) (model.Booking, error)
	Apply(ctx context.Context, bookingID string, actor storage.Actor, t storage.Transition) (model.Booking, error)
	Get(ctx context.Context, bookingID string) (model.Booking, error)
	ActiveBookings(ctx context.Context, providerID string, date timegrid.Date) ([]model.Booking, error)
	ActiveBookingsBetween(ctx context.Context, providerID string, from, to timegrid.Date) ([]model.Booking, error)
	ListForProvider(ctx context.Context, providerID string, status model.BookingStatus) ([]model.BookingDetails, error)
	ListForCustomer(ctx context.Context, customerID string) ([]model.BookingDetails, error)
	CustomerSnapshot(ctx context.Context, providerID, customerID string, today timegrid.Date) (model.CustomerSnapshot, error)
}

type ProviderStore interface {
	Search(ctx context.Context, name, providerID string) ([]model.Provider, error)
	Services(ctx context.Context, providerID string) ([]model.Service, error)
	Service(ctx context.Context, providerID, serviceID string) (model.Service, error)
	ActiveProvider(ctx context.Context, providerID string) (bool, error)
}

type RescheduleBuilder interface {
	Build(ctx context.Context, req reschedule.Request) ([]reschedule.DateSchedule, error)
	ForDate(ctx context.Context, req reschedule.Request, date timegrid.Date) (reschedule.DateSchedule, error)
}

type Config struct {
	Schedules ScheduleStore
	Bookings  BookingStore
	Providers ProviderStore
	Builder   RescheduleBuilder
	Checker   conflict.Checker
	Policy    availability.Policy
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type Handler struct {
	schedules ScheduleStore
	bookings  BookingStore
	providers ProviderStore
	builder   RescheduleBuilder
	checker   conflict.Checker
	policy    availability.Policy
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onFault   func(string, availability.Fault)
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy.Fallback == "" {
		cfg.Policy = availability.DefaultPolicy()
	}
	return &Handler{
		schedules: cfg.Schedules,
		bookings:  cfg.Bookings,
		providers: cfg.Providers,
		builder:   cfg.Builder,
		checker:   cfg.Checker,
		policy:    cfg.Policy,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		onFault:   FaultReporter(cfg.Logger, cfg.Metrics),
	}
}

// Register mounts the provider and customer APIs on r. authn must put
// verified claims in the request context.
func (h *Handler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/provider", func(r chi.Router) {
		r.Use(authn, auth.RequireRole(auth.RoleProvider))

		r.Get("/availability", h.GetAvailability)
		r.Post("/availability", h.SetAvailability)
		r.Post("/availability/preview", h.PreviewAvailability)
		r.Get("/services", h.ListServices)
		r.Get("/customer/{id}/snapshot", h.CustomerSnapshot)

		r.Get("/bookings/pending", h.listProviderBookings(model.StatusPending))
		r.Get("/bookings/confirmed", h.listProviderBookings(model.StatusConfirmed))
		r.Get("/bookings/reschedule-window", h.RescheduleWindow)
		r.Post("/bookings/{id}/accept", h.transition(storage.Accept, "Booking accepted"))
		r.Post("/bookings/{id}/reject", h.transition(storage.Reject, "Booking rejected"))
		r.Delete("/bookings/{id}", h.transition(storage.ProviderDelete, "Booking deleted"))
		r.Get("/bookings/{id}/available-slots", h.AvailableSlots)
		r.Put("/bookings/{id}/reschedule", h.RescheduleBooking)
	})

	r.Route("/customer", func(r chi.Router) {
		r.Use(authn, auth.RequireRole(auth.RoleCustomer))

		r.Get("/providers/search", h.SearchProviders)
		r.Get("/providers/{id}/availability/{date}", h.ProviderAvailability)
		r.Get("/providers/{id}/calendar/{year}/{month}", h.ProviderCalendar)
		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings", h.ListCustomerBookings)
		r.Delete("/bookings/{id}", h.CancelBooking)
	})
}

func profileID(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.ProfileID
}

func (h *Handler) reportFaults(providerID string, day availability.Day) {
	for _, f := range day.Faults {
		h.onFault(providerID, f)
	}
}

// rescheduleSource feeds the reschedule builder from the service's stores.
type rescheduleSource struct {
	schedules ScheduleStore
	bookings  BookingStore
}

func NewRescheduleSource(schedules ScheduleStore, bookings BookingStore) reschedule.Source {
	return rescheduleSource{schedules: schedules, bookings: bookings}
}

func (s rescheduleSource) Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	return s.schedules.Windows(ctx, providerID)
}

func (s rescheduleSource) ActiveBookings(ctx context.Context, providerID string, date timegrid.Date) ([]model.Booking, error) {
	return s.bookings.ActiveBookings(ctx, providerID, date)
}
