package model

import (
	"time"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusDeleted   BookingStatus = "deleted"
)

// Active bookings hold their session; every other status frees it.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Booking times are minutes since midnight on Date.
type Booking struct {
	ID          string
	ProviderID  string
	CustomerID  string
	ServiceID   string
	Date        timegrid.Date
	StartMinute int
	EndMinute   int
	Status      BookingStatus
	Cost        float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingDetails is a Booking joined with the names shown in booking lists.
type BookingDetails struct {
	Booking
	ServiceName   string
	ProviderName  string
	CustomerName  string
	CustomerPhone string
}

// CustomerSnapshot summarises a customer's visits with one provider. A visit
// is a completed booking or a confirmed one on a date already past.
// LastServiceDate is zero when there are no visits.
type CustomerSnapshot struct {
	CustomerID      string
	CustomerName    string
	TotalBookings   int
	TotalVisits     int
	TotalSpent      float64
	LastServiceDate timegrid.Date
	LastServiceName string
}
