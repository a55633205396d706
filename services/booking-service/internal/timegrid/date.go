package timegrid

import (
	"fmt"
	"time"
)

// Date is a calendar date. It is comparable, so it can key maps, and it never
// carries a location: two processes in different zones agree on its weekday.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const isoLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD" as a calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q, expected YYYY-MM-DD", ErrInvalidFormat, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of d. UTC has no DST gaps, so day arithmetic on
// the result is exact.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// Display renders the short human form used by the client, e.g. "Mon, Jan 15".
func (d Date) Display() string {
	return d.Time().Format("Mon, Jan 2")
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(d Date) int {
	return (int(d.Time().Weekday()) + 6) % 7
}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// WeekdayName names a 0 (Monday) .. 6 (Sunday) weekday.
func WeekdayName(dow int) string {
	if dow < 0 || dow > 6 {
		return fmt.Sprintf("day %d", dow)
	}
	return weekdayNames[dow]
}

// DateRange lists every date from start to end inclusive, ascending. It is
// empty when start is after end.
func DateRange(start, end Date) []Date {
	if start.After(end) {
		return nil
	}
	n := int(end.Time().Sub(start.Time()).Hours()/24) + 1
	out := make([]Date, 0, n)
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last date of a month. It fails for
// months outside 1..12.
func MonthRange(year int, month time.Month) (Date, Date, error) {
	if month < time.January || month > time.December {
		return Date{}, Date{}, fmt.Errorf("%w: month %d", ErrInvalidFormat, month)
	}
	first := Date{Year: year, Month: month, Day: 1}
	return first, Date{Year: year, Month: month, Day: DaysInMonth(year, month)}, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
