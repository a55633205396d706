// Package timegrid holds the calendar and clock arithmetic shared by slot
// generation, reconciliation and rescheduling. Clock times are minutes since
// midnight; dates are civil dates with no time zone attached.
package timegrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned for malformed clock times and dates.
var ErrInvalidFormat = errors.New("invalid format")

const MinutesPerDay = 24 * 60

// ToMinutes parses a 24-hour "H:MM" or "HH:MM" clock time.
func ToMinutes(hhmm string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, fmt.Errorf("%w: time %q, expected HH:MM", ErrInvalidFormat, hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 || !isDigits(h) {
		return 0, fmt.Errorf("%w: hour in %q", ErrInvalidFormat, hhmm)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || !isDigits(m) {
		return 0, fmt.Errorf("%w: minute in %q", ErrInvalidFormat, hhmm)
	}
	return hour*60 + minute, nil
}

// ToEndMinutes parses the end of a range. It accepts everything ToMinutes
// does plus "24:00", which is midnight at the end of the day.
func ToEndMinutes(hhmm string) (int, error) {
	if strings.TrimSpace(hhmm) == "24:00" {
		return MinutesPerDay, nil
	}
	return ToMinutes(hhmm)
}

// ToHHMM renders minutes since midnight as zero-padded "HH:MM". 1440 renders
// as "24:00" so a window may end at midnight.
func ToHHMM(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > MinutesPerDay {
		minutes = MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Range renders "HH:MM-HH:MM".
func Range(start, end int) string {
	return ToHHMM(start) + "-" + ToHHMM(end)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
