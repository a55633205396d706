package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

const (
	AggregateBooking  = "booking"
	AggregateSchedule = "provider_schedule"
)

// Event types. The Kafka topic is the optional prefix plus the event type.
const (
	BookingRequested         = "booking.requested.v1"
	BookingConfirmed         = "booking.confirmed.v1"
	BookingCancelled         = "booking.cancelled.v1"
	BookingDeleted           = "booking.deleted.v1"
	BookingRescheduled       = "booking.rescheduled.v1"
	ProviderScheduleReplaced = "provider.schedule.replaced.v1"
)

// Event is the envelope written to the outbox table.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

type BookingPayload struct {
	BookingID  string    `json:"booking_id"`
	ProviderID string    `json:"provider_id"`
	CustomerID string    `json:"customer_id"`
	ServiceID  string    `json:"service_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Status     string    `json:"status"`
	Cost       float64   `json:"cost"`
	OccurredAt time.Time `json:"occurred_at"`

	PreviousDate      string `json:"previous_date,omitempty"`
	PreviousStartTime string `json:"previous_start_time,omitempty"`
	PreviousEndTime   string `json:"previous_end_time,omitempty"`
}

func NewBookingPayload(b model.Booking, at time.Time) BookingPayload {
	return BookingPayload{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		CustomerID: b.CustomerID,
		ServiceID:  b.ServiceID,
		Date:       b.Date.String(),
		StartTime:  timegrid.ToHHMM(b.StartMinute),
		EndTime:    timegrid.ToHHMM(b.EndMinute),
		Status:     string(b.Status),
		Cost:       b.Cost,
		OccurredAt: at.UTC(),
	}
}

// BookingEvent builds a booking lifecycle event. prev, when non-nil, is the
// booking's slot before a reschedule.
func BookingEvent(eventType string, b model.Booking, prev *model.Booking, at time.Time) (Event, error) {
	p := NewBookingPayload(b, at)
	if prev != nil {
		p.PreviousDate = prev.Date.String()
		p.PreviousStartTime = timegrid.ToHHMM(prev.StartMinute)
		p.PreviousEndTime = timegrid.ToHHMM(prev.EndMinute)
	}
	return NewEvent(AggregateBooking, b.ID, eventType, p)
}

type WindowPayload struct {
	DayOfWeek       int    `json:"day_of_week"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	SessionDuration int    `json:"session_duration"`
}

type SchedulePayload struct {
	ProviderID string          `json:"provider_id"`
	Windows    []WindowPayload `json:"windows"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func ScheduleReplacedEvent(providerID string, windows []model.AvailabilityWindow, at time.Time) (Event, error) {
	p := SchedulePayload{ProviderID: providerID, Windows: make([]WindowPayload, 0, len(windows)), OccurredAt: at.UTC()}
	for _, w := range windows {
		p.Windows = append(p.Windows, WindowPayload{
			DayOfWeek:       w.DayOfWeek,
			StartTime:       timegrid.ToHHMM(w.StartMinute),
			EndTime:         timegrid.ToHHMM(w.EndMinute),
			SessionDuration: w.SessionDuration,
		})
	}
	return NewEvent(AggregateSchedule, providerID, ProviderScheduleReplaced, p)
}
