// Package slots tiles availability windows into fixed-length sessions and
// reports the minutes a window leaves unused.
package slots

import (
	"errors"
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

var (
	ErrInvalidDuration    = errors.New("session duration must be a positive number of minutes")
	ErrInvalidWindow      = errors.New("end time must be after start time")
	ErrOverlappingWindows = errors.New("availability windows overlap")
)

// Session is a bookable range in minutes since midnight, half-open [Start, End).
type Session struct {
	Start int
	End   int
}

func (s Session) Duration() int { return s.End - s.Start }

// Overlaps reports whether [start, end) intersects the session.
func (s Session) Overlaps(start, end int) bool {
	return start < s.End && s.Start < end
}

func (s Session) String() string { return timegrid.Range(s.Start, s.End) }

type Result struct {
	Sessions         []Session
	RemainderMinutes int
}

// Generate tiles w from its start in SessionDuration steps. Minutes that do
// not fill a whole session are returned as RemainderMinutes, never as a
// shorter session.
func Generate(w model.AvailabilityWindow) (Result, error) {
	if err := Validate(w); err != nil {
		return Result{}, err
	}
	total := w.EndMinute - w.StartMinute
	count := total / w.SessionDuration

	sessions := make([]Session, 0, count)
	for i := 0; i < count; i++ {
		start := w.StartMinute + i*w.SessionDuration
		sessions = append(sessions, Session{Start: start, End: start + w.SessionDuration})
	}
	return Result{Sessions: sessions, RemainderMinutes: total - count*w.SessionDuration}, nil
}

// Validate checks a single window without generating sessions.
func Validate(w model.AvailabilityWindow) error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week %d, expected 0 (Monday) to 6 (Sunday)", timegrid.ErrInvalidFormat, w.DayOfWeek)
	}
	if w.SessionDuration <= 0 {
		return fmt.Errorf("%s %s: %w", timegrid.WeekdayName(w.DayOfWeek), timegrid.Range(w.StartMinute, w.EndMinute), ErrInvalidDuration)
	}
	if w.StartMinute < 0 || w.EndMinute > timegrid.MinutesPerDay || w.EndMinute <= w.StartMinute {
		return fmt.Errorf("%s %s: %w", timegrid.WeekdayName(w.DayOfWeek), timegrid.Range(w.StartMinute, w.EndMinute), ErrInvalidWindow)
	}
	return nil
}

// ParseWindow builds a window from its wire form. A zero duration means the
// default of 30 minutes; a negative one is rejected.
func ParseWindow(dayOfWeek int, start, end string, duration int) (model.AvailabilityWindow, error) {
	startMin, err := timegrid.ToMinutes(start)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	endMin, err := timegrid.ToEndMinutes(end)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	if duration == 0 {
		duration = model.DefaultSessionDuration
	}
	w := model.AvailabilityWindow{
		DayOfWeek:       dayOfWeek,
		StartMinute:     startMin,
		EndMinute:       endMin,
		SessionDuration: duration,
	}
	return w, Validate(w)
}

// ForDay returns the windows for one weekday, ordered by start.
func ForDay(windows []model.AvailabilityWindow, dayOfWeek int) []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	for _, w := range windows {
		if w.DayOfWeek == dayOfWeek {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out
}

// ValidateDay fails with ErrOverlappingWindows when two windows of one
// weekday intersect. Touching windows (09:00-12:00, 12:00-15:00) are fine.
func ValidateDay(windows []model.AvailabilityWindow) error {
	sorted := make([]model.AvailabilityWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMinute < sorted[j].StartMinute })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.StartMinute < prev.EndMinute {
			return fmt.Errorf("%s %s and %s: %w", timegrid.WeekdayName(cur.DayOfWeek),
				timegrid.Range(prev.StartMinute, prev.EndMinute), timegrid.Range(cur.StartMinute, cur.EndMinute),
				ErrOverlappingWindows)
		}
	}
	return nil
}

// ValidateSchedule validates every window and checks each weekday for overlaps.
func ValidateSchedule(windows []model.AvailabilityWindow) error {
	for _, w := range windows {
		if err := Validate(w); err != nil {
			return err
		}
	}
	for day := 0; day < 7; day++ {
		if err := ValidateDay(ForDay(windows, day)); err != nil {
			return err
		}
	}
	return nil
}
