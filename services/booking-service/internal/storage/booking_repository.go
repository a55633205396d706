package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/sessionbook/libs/db"
	otelx "github.com/md-rashed-zaman/sessionbook/libs/otel"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

// CheckFunc decides whether a booking may take its slot, given the provider's
// windows and the active bookings on the target date. It runs while the
// provider's day is locked.
type CheckFunc func(windows []model.AvailabilityWindow, active []model.Booking) error

type BookingRepository struct {
	db     db.Beginner
	outbox *outbox.Repository
	now    func() time.Time
}

func NewBookingRepository(pool db.Beginner, ob *outbox.Repository) *BookingRepository {
	return &BookingRepository{db: pool, outbox: ob, now: time.Now}
}

const bookingColumns = `
	b.id::text, b.provider_id::text, b.customer_id::text, b.service_id::text,
	b.booking_date, b.start_minute, b.end_minute, b.status, b.cost::float8, b.created_at, b.updated_at`

type CreateResult struct {
	Booking  model.Booking
	Replayed bool
}

// Create inserts b as pending after check passes. With a non-empty
// idempotencyKey a repeated request returns the booking created by the first
// one. A slot lost to a concurrent writer surfaces as conflict.ErrSlotAlreadyBooked.
func (r *BookingRepository) Create(ctx context.Context, b model.Booking, idempotencyKey string, check CheckFunc) (CreateResult, error) {
	ctx, span := otelx.Tracer("sessionbook/storage").Start(ctx, "storage.CreateBooking")
	defer span.End()
	span.SetAttributes(attribute.String("provider.id", b.ProviderID), attribute.String("booking.date", b.Date.String()))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockProviderDay(ctx, tx, b.ProviderID, b.Date); err != nil {
		return CreateResult{}, err
	}

	if idempotencyKey != "" {
		var existingID string
		err := tx.QueryRow(ctx, `
			SELECT booking_id::text
			FROM booking_idempotency_keys
			WHERE customer_id = $1 AND idempotency_key = $2
		`, b.CustomerID, idempotencyKey).Scan(&existingID)
		switch {
		case err == nil:
			existing, err := getBooking(ctx, tx, existingID, false)
			if err != nil {
				return CreateResult{}, err
			}
			return CreateResult{Booking: existing, Replayed: true}, tx.Commit(ctx)
		case !errors.Is(err, pgx.ErrNoRows):
			return CreateResult{}, err
		}
	}

	windows, err := loadWindows(ctx, tx, b.ProviderID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load windows: %w", err)
	}
	active, err := activeBookings(ctx, tx, b.ProviderID, b.Date)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load bookings: %w", err)
	}
	if err := check(windows, active); err != nil {
		return CreateResult{}, err
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, provider_id, customer_id, service_id, booking_date, start_minute, end_minute, status, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, b.ID, b.ProviderID, b.CustomerID, b.ServiceID, b.Date.Time(), b.StartMinute, b.EndMinute, string(b.Status), b.Cost).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return CreateResult{}, fmt.Errorf("insert booking: %w", conflict.ErrSlotAlreadyBooked)
		}
		return CreateResult{}, err
	}

	if idempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_idempotency_keys (customer_id, idempotency_key, booking_id)
			VALUES ($1, $2, $3)
		`, b.CustomerID, idempotencyKey, b.ID); err != nil {
			if isIdempotencyConflict(err) {
				return CreateResult{}, ErrIdempotencyReuse
			}
			return CreateResult{}, err
		}
	}

	evt, err := outbox.BookingEvent(outbox.BookingRequested, b, nil, r.now())
	if err != nil {
		return CreateResult{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return CreateResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return CreateResult{}, fmt.Errorf("commit booking: %w", conflict.ErrSlotAlreadyBooked)
		}
		return CreateResult{}, err
	}
	return CreateResult{Booking: b}, nil
}

type RescheduleRequest struct {
	BookingID   string
	ProviderID  string
	Date        timegrid.Date
	StartMinute int
	EndMinute   int
}

// Reschedule moves an active booking owned by ProviderID to a new slot.
func (r *BookingRepository) Reschedule(ctx context.Context, req RescheduleRequest, check CheckFunc) (model.Booking, error) {
	ctx, span := otelx.Tracer("sessionbook/storage").Start(ctx, "storage.RescheduleBooking")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", req.BookingID), attribute.String("booking.date", req.Date.String()))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := getBooking(ctx, tx, req.BookingID, true)
	if err != nil {
		return model.Booking{}, err
	}
	if cur.ProviderID != req.ProviderID {
		return model.Booking{}, ErrNotOwner
	}
	if !cur.Status.Active() {
		return model.Booking{}, fmt.Errorf("reschedule %s booking: %w", cur.Status, ErrInvalidTransition)
	}

	if err := lockProviderDay(ctx, tx, cur.ProviderID, req.Date); err != nil {
		return model.Booking{}, err
	}
	windows, err := loadWindows(ctx, tx, cur.ProviderID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load windows: %w", err)
	}
	active, err := activeBookings(ctx, tx, cur.ProviderID, req.Date)
	if err != nil {
		return model.Booking{}, fmt.Errorf("load bookings: %w", err)
	}
	if err := check(windows, active); err != nil {
		return model.Booking{}, err
	}

	next := cur
	next.Date, next.StartMinute, next.EndMinute = req.Date, req.StartMinute, req.EndMinute
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET booking_date = $2, start_minute = $3, end_minute = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, cur.ID, req.Date.Time(), req.StartMinute, req.EndMinute).Scan(&next.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return model.Booking{}, fmt.Errorf("update booking: %w", conflict.ErrSlotAlreadyBooked)
		}
		return model.Booking{}, err
	}

	evt, err := outbox.BookingEvent(outbox.BookingRescheduled, next, &cur, r.now())
	if err != nil {
		return model.Booking{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.Booking{}, fmt.Errorf("commit booking: %w", conflict.ErrSlotAlreadyBooked)
		}
		return model.Booking{}, err
	}
	return next, nil
}

// Actor identifies who changes a booking. Exactly one ID is set.
type Actor struct {
	ProviderID string
	CustomerID string
}

func (a Actor) owns(b model.Booking) bool {
	if a.ProviderID != "" {
		return b.ProviderID == a.ProviderID
	}
	return a.CustomerID != "" && b.CustomerID == a.CustomerID
}

type Transition struct {
	From      []model.BookingStatus
	To        model.BookingStatus
	EventType string
}

var (
	Accept         = Transition{From: []model.BookingStatus{model.StatusPending}, To: model.StatusConfirmed, EventType: outbox.BookingConfirmed}
	Reject         = Transition{From: []model.BookingStatus{model.StatusPending}, To: model.StatusCancelled, EventType: outbox.BookingCancelled}
	CustomerCancel = Transition{From: []model.BookingStatus{model.StatusPending, model.StatusConfirmed}, To: model.StatusCancelled, EventType: outbox.BookingCancelled}
	ProviderDelete = Transition{
		From:      []model.BookingStatus{model.StatusPending, model.StatusConfirmed, model.StatusCompleted, model.StatusCancelled},
		To:        model.StatusDeleted,
		EventType: outbox.BookingDeleted,
	}
)

// Apply moves the booking through t on behalf of actor.
func (r *BookingRepository) Apply(ctx context.Context, bookingID string, actor Actor, t Transition) (model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := getBooking(ctx, tx, bookingID, true)
	if err != nil {
		return model.Booking{}, err
	}
	if !actor.owns(b) {
		return model.Booking{}, ErrNotOwner
	}
	if !slices.Contains(t.From, b.Status) {
		return model.Booking{}, fmt.Errorf("%s -> %s: %w", b.Status, t.To, ErrInvalidTransition)
	}

	b.Status = t.To
	if err := tx.QueryRow(ctx, `
		UPDATE bookings SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, string(t.To)).Scan(&b.UpdatedAt); err != nil {
		return model.Booking{}, err
	}

	evt, err := outbox.BookingEvent(t.EventType, b, nil, r.now())
	if err != nil {
		return model.Booking{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingRepository) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return getBooking(ctx, r.db, bookingID, false)
}

// ActiveBookings returns pending and confirmed bookings of the provider on date.
func (r *BookingRepository) ActiveBookings(ctx context.Context, providerID string, date timegrid.Date) ([]model.Booking, error) {
	return activeBookings(ctx, r.db, providerID, date)
}

// ActiveBookingsBetween covers from..to inclusive.
func (r *BookingRepository) ActiveBookingsBetween(ctx context.Context, providerID string, from, to timegrid.Date) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.provider_id = $1
			AND b.booking_date BETWEEN $2 AND $3
			AND b.status IN ('pending', 'confirmed')
		ORDER BY b.booking_date, b.start_minute
	`, providerID, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListForProvider returns the provider's bookings in status, soonest first,
// with customer and service names.
func (r *BookingRepository) ListForProvider(ctx context.Context, providerID string, status model.BookingStatus) ([]model.BookingDetails, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`, s.name, p.provider_name, c.name, c.phone
		FROM bookings b
		JOIN services s ON s.id = b.service_id
		JOIN providers p ON p.id = b.provider_id
		JOIN customers c ON c.id = b.customer_id
		WHERE b.provider_id = $1 AND b.status = $2
		ORDER BY b.booking_date, b.start_minute
	`, providerID, string(status))
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

// ListForCustomer returns the customer's bookings, latest date first.
// Deleted bookings are hidden.
func (r *BookingRepository) ListForCustomer(ctx context.Context, customerID string) ([]model.BookingDetails, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`, s.name, p.provider_name, c.name, c.phone
		FROM bookings b
		JOIN services s ON s.id = b.service_id
		JOIN providers p ON p.id = b.provider_id
		JOIN customers c ON c.id = b.customer_id
		WHERE b.customer_id = $1 AND b.status <> 'deleted'
		ORDER BY b.booking_date DESC, b.start_minute DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

// lockProviderDay serialises writers of one provider's date until the
// transaction ends.
// CustomerSnapshot totals the customer's visits with the provider up to
// today. A customer with no bookings at the provider is ErrNotFound.
func (r *BookingRepository) CustomerSnapshot(ctx context.Context, providerID, customerID string, today timegrid.Date) (model.CustomerSnapshot, error) {
	if _, err := uuid.Parse(customerID); err != nil {
		return model.CustomerSnapshot{}, ErrNotFound
	}
	var (
		snap     = model.CustomerSnapshot{CustomerID: customerID}
		lastDate *time.Time
		lastName *string
	)
	err := r.db.QueryRow(ctx, `
		WITH history AS (
			SELECT b.booking_date, b.start_minute, b.cost, s.name AS service_name,
				(b.status = 'completed' OR (b.status = 'confirmed' AND b.booking_date < $3)) AS visit
			FROM bookings b
			JOIN services s ON s.id = b.service_id
			WHERE b.provider_id = $1 AND b.customer_id = $2 AND b.status <> 'deleted'
		), last_visit AS (
			SELECT booking_date, service_name FROM history
			WHERE visit
			ORDER BY booking_date DESC, start_minute DESC
			LIMIT 1
		)
		SELECT c.name,
			(SELECT count(*) FROM history),
			(SELECT count(*) FROM history WHERE visit),
			(SELECT COALESCE(sum(cost), 0)::float8 FROM history WHERE visit),
			(SELECT booking_date FROM last_visit),
			(SELECT service_name FROM last_visit)
		FROM customers c
		WHERE c.id = $2
	`, providerID, customerID, today.Time()).Scan(&snap.CustomerName, &snap.TotalBookings, &snap.TotalVisits, &snap.TotalSpent, &lastDate, &lastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CustomerSnapshot{}, ErrNotFound
	}
	if err != nil {
		return model.CustomerSnapshot{}, err
	}
	if snap.TotalBookings == 0 {
		return model.CustomerSnapshot{}, ErrNotFound
	}
	if lastDate != nil {
		snap.LastServiceDate = timegrid.DateOf(*lastDate)
	}
	if lastName != nil {
		snap.LastServiceName = *lastName
	}
	return snap, nil
}

func lockProviderDay(ctx context.Context, q db.Querier, providerID string, date timegrid.Date) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID+"/"+date.String())
	if err != nil {
		return fmt.Errorf("lock provider day: %w", err)
	}
	return nil
}

func activeBookings(ctx context.Context, q db.Querier, providerID string, date timegrid.Date) ([]model.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.provider_id = $1
			AND b.booking_date = $2
			AND b.status IN ('pending', 'confirmed')
		ORDER BY b.start_minute
	`, providerID, date.Time())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func getBooking(ctx context.Context, q db.Querier, bookingID string, forUpdate bool) (model.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return model.Booking{}, ErrNotFound
	}
	sql := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, bookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner, extra ...any) (model.Booking, error) {
	var (
		b      model.Booking
		date   time.Time
		status string
	)
	dest := append([]any{
		&b.ID, &b.ProviderID, &b.CustomerID, &b.ServiceID,
		&date, &b.StartMinute, &b.EndMinute, &status, &b.Cost, &b.CreatedAt, &b.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Booking{}, err
	}
	b.Date = timegrid.DateOf(date)
	b.Status = model.BookingStatus(status)
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func collectDetails(rows pgx.Rows) ([]model.BookingDetails, error) {
	defer rows.Close()
	var out []model.BookingDetails
	for rows.Next() {
		var d model.BookingDetails
		b, err := scanBooking(rows, &d.ServiceName, &d.ProviderName, &d.CustomerName, &d.CustomerPhone)
		if err != nil {
			return nil, err
		}
		d.Booking = b
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
