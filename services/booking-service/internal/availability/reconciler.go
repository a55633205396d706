// Package availability reconciles generated sessions with existing bookings
// to answer "what is free on this date" and "how busy is this day".
package availability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

// ErrDataIntegrity marks a session claimed by more than one active booking.
var ErrDataIntegrity = errors.New("data integrity fault")

// Fault is reported, never corrected: the session stays booked.
type Fault struct {
	Date       timegrid.Date
	Session    slots.Session
	BookingIDs []string
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s: session %s %s claimed by bookings %s",
		ErrDataIntegrity, f.Date, f.Session, strings.Join(f.BookingIDs, ","))
}

func (f Fault) Unwrap() error { return ErrDataIntegrity }

type BookedSession struct {
	slots.Session
	BookingIDs []string
}

type Day struct {
	Date                timegrid.Date
	DayOfWeek           int
	Sessions            []slots.Session
	Available           []slots.Session
	Booked              []BookedSession
	Faults              []Fault
	AvailablePercentage float64
	Status              Status
}

func (d Day) TotalCount() int { return len(d.Sessions) }

// DayStatus is the calendar view of a Day.
type DayStatus struct {
	Date                timegrid.Date
	Status              Status
	AvailablePercentage float64
}

func (d Day) DayStatus() DayStatus {
	return DayStatus{Date: d.Date, Status: d.Status, AvailablePercentage: d.AvailablePercentage}
}

// Reconcile generates the sessions of date from the provider's weekly windows
// and partitions them by the active bookings on that date. Windows of other
// weekdays and inactive bookings are ignored. Overlapping windows on the
// date's weekday fail with slots.ErrOverlappingWindows.
func Reconcile(date timegrid.Date, windows []model.AvailabilityWindow, bookings []model.Booking, policy Policy) (Day, error) {
	dow := timegrid.DayOfWeek(date)
	dayWindows := slots.ForDay(windows, dow)
	if err := slots.ValidateDay(dayWindows); err != nil {
		return Day{}, fmt.Errorf("reconcile %s: %w", date, err)
	}

	day := Day{Date: date, DayOfWeek: dow}
	for _, w := range dayWindows {
		res, err := slots.Generate(w)
		if err != nil {
			return Day{}, fmt.Errorf("reconcile %s: %w", date, err)
		}
		day.Sessions = append(day.Sessions, res.Sessions...)
	}

	active := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Active() && b.Date == date {
			active = append(active, b)
		}
	}

	for _, s := range day.Sessions {
		var claims []model.Booking
		for _, b := range active {
			if s.Overlaps(b.StartMinute, b.EndMinute) {
				claims = append(claims, b)
			}
		}
		if len(claims) == 0 {
			day.Available = append(day.Available, s)
			continue
		}
		ids := make([]string, 0, len(claims))
		for _, b := range claims {
			ids = append(ids, b.ID)
		}
		day.Booked = append(day.Booked, BookedSession{Session: s, BookingIDs: ids})
		if claimsCollide(claims) {
			day.Faults = append(day.Faults, Fault{Date: date, Session: s, BookingIDs: ids})
		}
	}

	if total := len(day.Sessions); total > 0 {
		day.AvailablePercentage = float64(len(day.Available)) / float64(total) * 100
	}
	day.Status = policy.Classify(len(day.Sessions), day.AvailablePercentage)
	return day, nil
}

// claimsCollide reports whether any two bookings of one session overlap each
// other. Adjacent bookings sharing a session after a schedule change do not.
func claimsCollide(claims []model.Booking) bool {
	for i := 0; i < len(claims); i++ {
		for j := i + 1; j < len(claims); j++ {
			a, b := claims[i], claims[j]
			if a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute {
				return true
			}
		}
	}
	return false
}
