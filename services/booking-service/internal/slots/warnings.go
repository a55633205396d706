package slots

import (
	"fmt"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

// Warning describes the unused tail of one window.
type Warning struct {
	Day              string
	Slot             string
	SessionDuration  int
	RemainderMinutes int
	UnusedTimeRange  string
	SessionsCreated  int
	Message          string
	Suggestions      []string
}

type Summary struct {
	DaysConfigured       int
	Windows              int
	TotalSessions        int
	TotalUnusedMinutes   int
	WindowsWithRemainder int
}

// Analysis is the outcome of checking a whole weekly schedule.
type Analysis struct {
	Warnings []Warning
	Summary  Summary
}

// Session lengths offered when a window does not divide evenly.
var suggestedDurations = []int{15, 20, 30, 45, 60, 90, 120}

// Analyze validates a full schedule and reports one warning per window that
// leaves minutes unused. Windows are visited by weekday, then start time.
func Analyze(windows []model.AvailabilityWindow) (Analysis, error) {
	if err := ValidateSchedule(windows); err != nil {
		return Analysis{}, err
	}
	var a Analysis
	for day := 0; day < 7; day++ {
		dayWindows := ForDay(windows, day)
		if len(dayWindows) == 0 {
			continue
		}
		a.Summary.DaysConfigured++
		for _, w := range dayWindows {
			res, err := Generate(w)
			if err != nil {
				return Analysis{}, err
			}
			a.Summary.Windows++
			a.Summary.TotalSessions += len(res.Sessions)
			if res.RemainderMinutes == 0 {
				continue
			}
			a.Summary.TotalUnusedMinutes += res.RemainderMinutes
			a.Summary.WindowsWithRemainder++
			a.Warnings = append(a.Warnings, warningFor(w, res))
		}
	}
	return a, nil
}

func warningFor(w model.AvailabilityWindow, res Result) Warning {
	used := w.StartMinute + len(res.Sessions)*w.SessionDuration
	msg := fmt.Sprintf("%d minutes will be unused", res.RemainderMinutes)
	if len(res.Sessions) == 0 {
		msg = fmt.Sprintf("window is shorter than one %d-minute session; all %d minutes will be unused",
			w.SessionDuration, res.RemainderMinutes)
	}
	return Warning{
		Day:              timegrid.WeekdayName(w.DayOfWeek),
		Slot:             timegrid.Range(w.StartMinute, w.EndMinute),
		SessionDuration:  w.SessionDuration,
		RemainderMinutes: res.RemainderMinutes,
		UnusedTimeRange:  timegrid.Range(used, w.EndMinute),
		SessionsCreated:  len(res.Sessions),
		Message:          msg,
		Suggestions:      suggestionsFor(w, res),
	}
}

func suggestionsFor(w model.AvailabilityWindow, res Result) []string {
	var out []string
	n := len(res.Sessions)
	if n > 0 {
		out = append(out, fmt.Sprintf("Change end time to %s for exactly %d sessions",
			timegrid.ToHHMM(w.StartMinute+n*w.SessionDuration), n))
	}
	if extended := w.StartMinute + (n+1)*w.SessionDuration; extended <= timegrid.MinutesPerDay {
		out = append(out, fmt.Sprintf("Change end time to %s to fit %d sessions",
			timegrid.ToHHMM(extended), n+1))
	}
	total := w.EndMinute - w.StartMinute
	added := 0
	for _, d := range suggestedDurations {
		if d == w.SessionDuration || d > total || total%d != 0 {
			continue
		}
		out = append(out, fmt.Sprintf("Use %d-minute sessions to fit %d sessions exactly", d, total/d))
		added++
		if added == 2 {
			break
		}
	}
	return out
}
