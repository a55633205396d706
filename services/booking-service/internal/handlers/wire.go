package handlers

import (
	"fmt"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

type timeSlotJSON struct {
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	SessionDuration *int   `json:"session_duration,omitempty"`
}

type dayAvailabilityJSON struct {
	DayOfWeek int            `json:"day_of_week"`
	TimeSlots []timeSlotJSON `json:"time_slots"`
}

type scheduleJSON struct {
	ProviderID string                `json:"provider_id"`
	Schedule   []dayAvailabilityJSON `json:"schedule"`
}

type sessionJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type warningJSON struct {
	Day              string   `json:"day"`
	Slot             string   `json:"slot"`
	SessionDuration  int      `json:"session_duration"`
	RemainderMinutes int      `json:"remainder_minutes"`
	UnusedTimeRange  string   `json:"unused_time_range"`
	SessionsCreated  int      `json:"sessions_created"`
	Message          string   `json:"message"`
	Suggestions      []string `json:"suggestions"`
}

type summaryJSON struct {
	DaysConfigured       int `json:"days_configured"`
	Windows              int `json:"windows"`
	TotalSessions        int `json:"total_sessions"`
	TotalUnusedMinutes   int `json:"total_unused_minutes"`
	WindowsWithRemainder int `json:"windows_with_remainder"`
}

type bookingJSON struct {
	BookingID     string  `json:"booking_id"`
	ProviderID    string  `json:"provider_id,omitempty"`
	CustomerID    string  `json:"customer_id,omitempty"`
	ServiceID     string  `json:"service_id,omitempty"`
	Date          string  `json:"date"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Cost          float64 `json:"cost"`
	Status        string  `json:"status"`
	ServiceName   string  `json:"service_name,omitempty"`
	ProviderName  string  `json:"provider_name,omitempty"`
	CustomerName  string  `json:"customer_name,omitempty"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
}

// parseSchedule converts the wire schedule to windows. An omitted
// session_duration defaults to 30 minutes; an explicit 0 is rejected.
func parseSchedule(days []dayAvailabilityJSON) ([]model.AvailabilityWindow, error) {
	var windows []model.AvailabilityWindow
	for _, day := range days {
		for _, ts := range day.TimeSlots {
			duration := 0
			if ts.SessionDuration != nil {
				duration = *ts.SessionDuration
				if duration == 0 {
					return nil, fmt.Errorf("%s %s-%s: %w", timegrid.WeekdayName(day.DayOfWeek), ts.StartTime, ts.EndTime, slots.ErrInvalidDuration)
				}
			}
			w, err := slots.ParseWindow(day.DayOfWeek, ts.StartTime, ts.EndTime, duration)
			if err != nil {
				return nil, err
			}
			windows = append(windows, w)
		}
	}
	return windows, nil
}

// scheduleToJSON groups windows by weekday in ascending order.
func scheduleToJSON(providerID string, windows []model.AvailabilityWindow) scheduleJSON {
	out := scheduleJSON{ProviderID: providerID, Schedule: []dayAvailabilityJSON{}}
	for dow := 0; dow < 7; dow++ {
		dayWindows := slots.ForDay(windows, dow)
		if len(dayWindows) == 0 {
			continue
		}
		day := dayAvailabilityJSON{DayOfWeek: dow, TimeSlots: make([]timeSlotJSON, 0, len(dayWindows))}
		for _, w := range dayWindows {
			d := w.SessionDuration
			day.TimeSlots = append(day.TimeSlots, timeSlotJSON{
				StartTime:       timegrid.ToHHMM(w.StartMinute),
				EndTime:         timegrid.ToHHMM(w.EndMinute),
				SessionDuration: &d,
			})
		}
		out.Schedule = append(out.Schedule, day)
	}
	return out
}

func sessionsToJSON(ss []slots.Session) []sessionJSON {
	out := make([]sessionJSON, 0, len(ss))
	for _, s := range ss {
		out = append(out, sessionJSON{StartTime: timegrid.ToHHMM(s.Start), EndTime: timegrid.ToHHMM(s.End)})
	}
	return out
}

func analysisToJSON(a slots.Analysis) ([]warningJSON, summaryJSON) {
	var warnings []warningJSON
	for _, w := range a.Warnings {
		warnings = append(warnings, warningJSON{
			Day:              w.Day,
			Slot:             w.Slot,
			SessionDuration:  w.SessionDuration,
			RemainderMinutes: w.RemainderMinutes,
			UnusedTimeRange:  w.UnusedTimeRange,
			SessionsCreated:  w.SessionsCreated,
			Message:          w.Message,
			Suggestions:      w.Suggestions,
		})
	}
	s := a.Summary
	return warnings, summaryJSON{
		DaysConfigured:       s.DaysConfigured,
		Windows:              s.Windows,
		TotalSessions:        s.TotalSessions,
		TotalUnusedMinutes:   s.TotalUnusedMinutes,
		WindowsWithRemainder: s.WindowsWithRemainder,
	}
}

func bookingToJSON(b model.Booking) bookingJSON {
	return bookingJSON{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		CustomerID: b.CustomerID,
		ServiceID:  b.ServiceID,
		Date:       b.Date.String(),
		StartTime:  timegrid.ToHHMM(b.StartMinute),
		EndTime:    timegrid.ToHHMM(b.EndMinute),
		Cost:       b.Cost,
		Status:     string(b.Status),
	}
}

// detailsToJSON renders list rows; IDs other than the booking's are omitted.
func detailsToJSON(ds []model.BookingDetails, withCustomer bool) []bookingJSON {
	out := make([]bookingJSON, 0, len(ds))
	for _, d := range ds {
		j := bookingJSON{
			BookingID:   d.ID,
			Date:        d.Date.String(),
			StartTime:   timegrid.ToHHMM(d.StartMinute),
			EndTime:     timegrid.ToHHMM(d.EndMinute),
			Cost:        d.Cost,
			Status:      string(d.Status),
			ServiceName: d.ServiceName,
		}
		if withCustomer {
			j.CustomerName, j.CustomerPhone = d.CustomerName, d.CustomerPhone
		} else {
			j.ProviderName = d.ProviderName
		}
		out = append(out, j)
	}
	return out
}
