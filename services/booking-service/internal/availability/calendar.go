package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

// Month reconciles every day of a month, in date order. Bookings outside the
// month are ignored.
func Month(year int, month time.Month, windows []model.AvailabilityWindow, bookings []model.Booking, policy Policy) ([]Day, error) {
	first, last, err := timegrid.MonthRange(year, month)
	if err != nil {
		return nil, err
	}
	return Span(first, last, windows, bookings, policy)
}

// Span reconciles each date from start to end inclusive.
func Span(start, end timegrid.Date, windows []model.AvailabilityWindow, bookings []model.Booking, policy Policy) ([]Day, error) {
	byDate := make(map[timegrid.Date][]model.Booking)
	for _, b := range bookings {
		byDate[b.Date] = append(byDate[b.Date], b)
	}

	dates := timegrid.DateRange(start, end)
	days := make([]Day, 0, len(dates))
	for _, d := range dates {
		day, err := Reconcile(d, windows, byDate[d], policy)
		if err != nil {
			return nil, fmt.Errorf("calendar: %w", err)
		}
		days = append(days, day)
	}
	return days, nil
}
