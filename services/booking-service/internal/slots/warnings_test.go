package slots

import (
	"errors"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
)

func TestAnalyzeReportsRemainders(t *testing.T) {
	schedule := []model.AvailabilityWindow{
		window(t, 0, "09:00", "17:00", 30),
		window(t, 0, "18:00", "18:50", 30),
		window(t, 2, "10:00", "10:20", 30),
	}
	a, err := Analyze(schedule)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", a.Warnings)
	}

	w := a.Warnings[0]
	if w.Day != "Monday" || w.Slot != "18:00-18:50" || w.RemainderMinutes != 20 || w.SessionsCreated != 1 {
		t.Fatalf("unexpected first warning %+v", w)
	}
	if w.UnusedTimeRange != "18:30-18:50" || w.Message != "20 minutes will be unused" {
		t.Fatalf("unexpected unused range or message %+v", w)
	}
	if len(w.Suggestions) == 0 || !strings.Contains(w.Suggestions[0], "18:30") {
		t.Fatalf("expected trim suggestion first, got %v", w.Suggestions)
	}

	empty := a.Warnings[1]
	if empty.SessionsCreated != 0 || !strings.Contains(empty.Message, "all 20 minutes") {
		t.Fatalf("unexpected empty-window warning %+v", empty)
	}

	s := a.Summary
	if s.DaysConfigured != 2 || s.Windows != 3 || s.TotalSessions != 17 || s.TotalUnusedMinutes != 40 || s.WindowsWithRemainder != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestAnalyzeSuggestsEvenDurations(t *testing.T) {
	a, err := Analyze([]model.AvailabilityWindow{window(t, 4, "09:00", "10:30", 60)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(a.Warnings))
	}
	joined := strings.Join(a.Warnings[0].Suggestions, "|")
	if !strings.Contains(joined, "Use 15-minute sessions to fit 6 sessions exactly") {
		t.Fatalf("expected an even-duration suggestion, got %v", a.Warnings[0].Suggestions)
	}
}

func TestAnalyzeRejectsInvalidSchedule(t *testing.T) {
	_, err := Analyze([]model.AvailabilityWindow{
		window(t, 5, "09:00", "12:00", 30),
		window(t, 5, "11:00", "13:00", 30),
	})
	if !errors.Is(err, ErrOverlappingWindows) {
		t.Fatalf("expected ErrOverlappingWindows, got %v", err)
	}
}

func TestAnalyzeSuggestsExtendingToMidnight(t *testing.T) {
	a, err := Analyze([]model.AvailabilityWindow{window(t, 6, "22:00", "23:50", 60)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(a.Warnings))
	}
	joined := strings.Join(a.Warnings[0].Suggestions, "|")
	if !strings.Contains(joined, "Change end time to 24:00 to fit 2 sessions") {
		t.Fatalf("expected a midnight extension, got %v", a.Warnings[0].Suggestions)
	}
}
