// Package reschedule lists candidate sessions across a range of dates for
// moving an existing booking.
package reschedule

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	otelx "github.com/md-rashed-zaman/sessionbook/libs/otel"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

const (
	DefaultMaxHorizonDays = 14
	DefaultParallelism    = 4
)

var ErrInvalidRange = errors.New("end date before start date")

// Source loads the inputs of one provider's reconciliation.
type Source interface {
	Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	ActiveBookings(ctx context.Context, providerID string, date timegrid.Date) ([]model.Booking, error)
}

type Request struct {
	ProviderID string
	BookingID  string
	StartDate  timegrid.Date
	EndDate    timegrid.Date
	Today      timegrid.Date
}

type DateSchedule struct {
	Date            timegrid.Date
	DayOfWeek       int
	DisplayDate     string
	IsToday         bool
	IsTomorrow      bool
	IsPast          bool
	HasAvailability bool
	TotalSlots      int
	AvailableCount  int
	Available       []slots.Session
	Booked          []slots.Session
}

type Builder struct {
	Source         Source
	Policy         availability.Policy
	MaxHorizonDays int
	Parallelism    int
	// OnFault, when set, receives integrity faults found while reconciling.
	// It is called from concurrent goroutines.
	OnFault func(providerID string, f availability.Fault)
	// Started, when set, reports sessions that have already begun; they are
	// left out of Available. Dates before Request.Today never offer sessions.
	Started func(date timegrid.Date, startMinute int) bool
}

func NewBuilder(src Source, maxDays, parallelism int) *Builder {
	return &Builder{
		Source:         src,
		Policy:         availability.DefaultPolicy(),
		MaxHorizonDays: maxDays,
		Parallelism:    parallelism,
	}
}

// Build returns one entry per date in [StartDate, EndDate], ascending. The
// range is clipped to MaxHorizonDays; a zero StartDate means Today. Dates
// without sessions are included with HasAvailability false.
func (b *Builder) Build(ctx context.Context, req Request) ([]DateSchedule, error) {
	start, end := req.StartDate, req.EndDate
	if start.IsZero() {
		start = req.Today
	}
	if end.IsZero() {
		end = start.AddDays(b.maxDays() - 1)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("reschedule %s..%s: %w", start, end, ErrInvalidRange)
	}
	if limit := start.AddDays(b.maxDays() - 1); end.After(limit) {
		end = limit
	}

	ctx, span := otelx.Tracer("sessionbook/reschedule").Start(ctx, "reschedule.Build")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.String("range.start", start.String()),
		attribute.String("range.end", end.String()),
	)

	windows, err := b.Source.Windows(ctx, req.ProviderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load windows")
		return nil, fmt.Errorf("load windows: %w", err)
	}

	dates := timegrid.DateRange(start, end)
	out := make([]DateSchedule, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism())
	for i, d := range dates {
		g.Go(func() error {
			ds, err := b.forDate(gctx, req, windows, d)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build")
		return nil, err
	}
	return out, nil
}

// ForDate is the single date form of Build.
func (b *Builder) ForDate(ctx context.Context, req Request, date timegrid.Date) (DateSchedule, error) {
	windows, err := b.Source.Windows(ctx, req.ProviderID)
	if err != nil {
		return DateSchedule{}, fmt.Errorf("load windows: %w", err)
	}
	return b.forDate(ctx, req, windows, date)
}

func (b *Builder) forDate(ctx context.Context, req Request, windows []model.AvailabilityWindow, date timegrid.Date) (DateSchedule, error) {
	bookings, err := b.Source.ActiveBookings(ctx, req.ProviderID, date)
	if err != nil {
		return DateSchedule{}, fmt.Errorf("load bookings %s: %w", date, err)
	}
	others := bookings[:0:0]
	for _, bk := range bookings {
		if bk.ID != req.BookingID {
			others = append(others, bk)
		}
	}

	day, err := availability.Reconcile(date, windows, others, b.policy())
	if err != nil {
		return DateSchedule{}, err
	}
	if b.OnFault != nil {
		for _, f := range day.Faults {
			b.OnFault(req.ProviderID, f)
		}
	}

	booked := make([]slots.Session, 0, len(day.Booked))
	for _, bs := range day.Booked {
		booked = append(booked, bs.Session)
	}
	past := !req.Today.IsZero() && date.Before(req.Today)
	available := b.bookable(date, day.Available, past)
	return DateSchedule{
		Date:            date,
		DayOfWeek:       day.DayOfWeek,
		DisplayDate:     date.Display(),
		IsToday:         !req.Today.IsZero() && date == req.Today,
		IsTomorrow:      !req.Today.IsZero() && date == req.Today.AddDays(1),
		IsPast:          past,
		HasAvailability: !past && day.TotalCount() > 0,
		TotalSlots:      day.TotalCount(),
		AvailableCount:  len(available),
		Available:       available,
		Booked:          booked,
	}, nil
}

// bookable drops the sessions a booking can no longer move into.
func (b *Builder) bookable(date timegrid.Date, free []slots.Session, past bool) []slots.Session {
	if past {
		return []slots.Session{}
	}
	if b.Started == nil {
		return free
	}
	out := make([]slots.Session, 0, len(free))
	for _, s := range free {
		if !b.Started(date, s.Start) {
			out = append(out, s)
		}
	}
	return out
}

func (b *Builder) maxDays() int {
	if b.MaxHorizonDays <= 0 {
		return DefaultMaxHorizonDays
	}
	return b.MaxHorizonDays
}

func (b *Builder) parallelism() int {
	if b.Parallelism <= 0 {
		return DefaultParallelism
	}
	return b.Parallelism
}

func (b *Builder) policy() availability.Policy {
	if b.Policy.Fallback == "" {
		return availability.DefaultPolicy()
	}
	return b.Policy
}
