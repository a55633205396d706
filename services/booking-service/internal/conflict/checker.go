// Package conflict decides whether a requested booking range may be taken.
package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

var (
	ErrNotASessionBoundary = errors.New("requested time is not a session")
	ErrSlotAlreadyBooked   = errors.New("time slot is already booked")
	ErrPastDate            = errors.New("requested time is in the past")

	// ErrNoAvailability is the NotASessionBoundary case where the provider has
	// no sessions at all on the requested date.
	ErrNoAvailability = fmt.Errorf("provider has no availability set: %w", ErrNotASessionBoundary)
)

type Request struct {
	Date      timegrid.Date
	StartTime string
	EndTime   string
	// Exclude is ignored among existing bookings (the booking being moved).
	Exclude string
}

// Checker has no side effects; storage runs it under the per-provider-day lock.
type Checker struct {
	Policy   availability.Policy
	Location *time.Location
	Now      func() time.Time
}

func NewChecker(loc *time.Location) Checker {
	if loc == nil {
		loc = time.UTC
	}
	return Checker{Policy: availability.DefaultPolicy(), Location: loc, Now: time.Now}
}

// Check returns the matched session or the first failing rule, tested in
// order: session boundary, existing booking, past date.
func (c Checker) Check(req Request, windows []model.AvailabilityWindow, bookings []model.Booking) (slots.Session, error) {
	start, err := timegrid.ToMinutes(req.StartTime)
	if err != nil {
		return slots.Session{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := timegrid.ToEndMinutes(req.EndTime)
	if err != nil {
		return slots.Session{}, fmt.Errorf("end_time: %w", err)
	}

	others := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if req.Exclude != "" && b.ID == req.Exclude {
			continue
		}
		others = append(others, b)
	}

	day, err := availability.Reconcile(req.Date, windows, others, c.policy())
	if err != nil {
		return slots.Session{}, err
	}
	if day.TotalCount() == 0 {
		return slots.Session{}, ErrNoAvailability
	}

	var (
		match slots.Session
		found bool
	)
	for _, s := range day.Sessions {
		if s.Start == start && s.End == end {
			match, found = s, true
			break
		}
	}
	if !found {
		return slots.Session{}, fmt.Errorf("%s %s: %w", req.Date, timegrid.Range(start, end), ErrNotASessionBoundary)
	}

	for _, b := range others {
		if b.Status.Active() && b.Date == req.Date && match.Overlaps(b.StartMinute, b.EndMinute) {
			return slots.Session{}, fmt.Errorf("%s %s: %w", req.Date, match, ErrSlotAlreadyBooked)
		}
	}

	if c.Started(req.Date, match.Start) {
		return slots.Session{}, fmt.Errorf("%s %s: %w", req.Date, match, ErrPastDate)
	}
	return match, nil
}

// Today is the current calendar date in the checker's location.
func (c Checker) Today() timegrid.Date {
	return timegrid.DateOf(c.now().In(c.location()))
}

// Started reports whether the session starting at startMinute on date has
// already begun in the checker's location.
func (c Checker) Started(date timegrid.Date, startMinute int) bool {
	loc := c.location()
	now := c.now().In(loc)
	today := timegrid.DateOf(now)
	if date.Before(today) {
		return true
	}
	if date.After(today) {
		return false
	}
	begins := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, loc).Add(time.Duration(startMinute) * time.Minute)
	return !begins.After(now)
}

func (c Checker) policy() availability.Policy {
	if c.Policy.Fallback == "" {
		return availability.DefaultPolicy()
	}
	return c.Policy
}

func (c Checker) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Checker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
