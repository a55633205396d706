package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/md-rashed-zaman/sessionbook/libs/auth"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/reschedule"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/timegrid"
)

const (
	testSecret = "handlers-test-secret"
	providerID = "prov-1"
	serviceID  = "svc-1"
)

// memStore is an in-memory stand-in for the three repositories. Writes are
// serialized by mu the way the repositories serialize them per provider-day.
type memStore struct {
	mu       sync.Mutex
	windows  map[string][]model.AvailabilityWindow
	bookings map[string]model.Booking
	keys     map[string]string
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		windows:  map[string][]model.AvailabilityWindow{},
		bookings: map[string]model.Booking{},
		keys:     map[string]string{},
	}
}

func (s *memStore) Windows(_ context.Context, pid string) ([]model.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.windows[pid]), nil
}

func (s *memStore) Replace(_ context.Context, pid string, ws []model.AvailabilityWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[pid] = slices.Clone(ws)
	return nil
}

func (s *memStore) activeLocked(pid string, from, to timegrid.Date) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == pid && b.Status.Active() && !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out
}

func (s *memStore) Create(_ context.Context, b model.Booking, key string, check storage.CheckFunc) (storage.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != "" {
		if id, ok := s.keys[b.CustomerID+"/"+key]; ok {
			return storage.CreateResult{Booking: s.bookings[id], Replayed: true}, nil
		}
	}
	if err := check(s.windows[b.ProviderID], s.activeLocked(b.ProviderID, b.Date, b.Date)); err != nil {
		return storage.CreateResult{}, err
	}
	s.seq++
	b.ID = fmt.Sprintf("bk-%d", s.seq)
	s.bookings[b.ID] = b
	if key != "" {
		s.keys[b.CustomerID+"/"+key] = b.ID
	}
	return storage.CreateResult{Booking: b}, nil
}

func (s *memStore) Reschedule(_ context.Context, req storage.RescheduleRequest, check storage.CheckFunc) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[req.BookingID]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	if b.ProviderID != req.ProviderID {
		return model.Booking{}, storage.ErrNotOwner
	}
	if err := check(s.windows[b.ProviderID], s.activeLocked(b.ProviderID, req.Date, req.Date)); err != nil {
		return model.Booking{}, err
	}
	b.Date, b.StartMinute, b.EndMinute = req.Date, req.StartMinute, req.EndMinute
	s.bookings[b.ID] = b
	return b, nil
}

func (s *memStore) Apply(_ context.Context, id string, actor storage.Actor, t storage.Transition) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	owner := b.CustomerID == actor.CustomerID
	if actor.ProviderID != "" {
		owner = b.ProviderID == actor.ProviderID
	}
	if !owner {
		return model.Booking{}, storage.ErrNotOwner
	}
	if !slices.Contains(t.From, b.Status) {
		return model.Booking{}, storage.ErrInvalidTransition
	}
	b.Status = t.To
	s.bookings[id] = b
	return b, nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *memStore) ActiveBookings(_ context.Context, pid string, d timegrid.Date) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(pid, d, d), nil
}

func (s *memStore) ActiveBookingsBetween(_ context.Context, pid string, from, to timegrid.Date) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(pid, from, to), nil
}

func (s *memStore) ListForProvider(_ context.Context, pid string, status model.BookingStatus) ([]model.BookingDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BookingDetails
	for _, b := range s.bookings {
		if b.ProviderID == pid && b.Status == status {
			out = append(out, model.BookingDetails{Booking: b, ServiceName: "Consultation", CustomerName: "Ada", CustomerPhone: "555-0100"})
		}
	}
	return out, nil
}

func (s *memStore) ListForCustomer(_ context.Context, cid string) ([]model.BookingDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BookingDetails
	for _, b := range s.bookings {
		if b.CustomerID == cid {
			out = append(out, model.BookingDetails{Booking: b, ServiceName: "Consultation", ProviderName: "Dr. Lee"})
		}
	}
	return out, nil
}

func (s *memStore) CustomerSnapshot(_ context.Context, pid, cid string, today timegrid.Date) (model.CustomerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := model.CustomerSnapshot{CustomerID: cid, CustomerName: "Ada"}
	var last model.Booking
	for _, b := range s.bookings {
		if b.ProviderID != pid || b.CustomerID != cid || b.Status == model.StatusDeleted {
			continue
		}
		snap.TotalBookings++
		if b.Status != model.StatusCompleted && (b.Status != model.StatusConfirmed || !b.Date.Before(today)) {
			continue
		}
		snap.TotalVisits++
		snap.TotalSpent += b.Cost
		if last.ID == "" || last.Date.Before(b.Date) {
			last = b
		}
	}
	if snap.TotalBookings == 0 {
		return model.CustomerSnapshot{}, storage.ErrNotFound
	}
	if last.ID != "" {
		snap.LastServiceDate, snap.LastServiceName = last.Date, "Consultation"
	}
	return snap, nil
}

func (s *memStore) Services(_ context.Context, pid string) ([]model.Service, error) {
	if pid != providerID {
		return nil, nil
	}
	return []model.Service{{ID: serviceID, ProviderID: providerID, Name: "Consultation", Price: 50}}, nil
}

func (s *memStore) Search(_ context.Context, name, pid string) ([]model.Provider, error) {
	p := model.Provider{
		ID:           providerID,
		ProviderName: "Dr. Lee",
		IsActive:     true,
		Services:     []model.Service{{ID: serviceID, ProviderID: providerID, Name: "Consultation", Price: 50}},
	}
	if pid != "" && pid != providerID {
		return nil, nil
	}
	return []model.Provider{p}, nil
}

func (s *memStore) Service(_ context.Context, pid, sid string) (model.Service, error) {
	if pid != providerID || sid != serviceID {
		return model.Service{}, storage.ErrNotFound
	}
	return model.Service{ID: serviceID, ProviderID: providerID, Name: "Consultation", Price: 50}, nil
}

func (s *memStore) ActiveProvider(_ context.Context, pid string) (bool, error) {
	return pid == providerID, nil
}

type testServer struct {
	t     *testing.T
	store *memStore
	srv   *httptest.Server
}

// Sunday 2024-01-14 12:00 UTC; the next day is Monday 2024-01-15.
var testNow = time.Date(2024, time.January, 14, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := newMemStore()
	checker := conflict.NewChecker(time.UTC)
	checker.Now = func() time.Time { return testNow }

	builder := reschedule.NewBuilder(NewRescheduleSource(store, store), 14, 4)
	builder.Started = checker.Started

	h := New(Config{
		Schedules: store,
		Bookings:  store,
		Providers: store,
		Builder:   builder,
		Checker:   checker,
		Metrics:   metrics.New(prometheus.NewRegistry()),
	})
	r := chi.NewRouter()
	h.Register(r, auth.Authenticate(auth.NewVerifier(testSecret, nil)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, store: store, srv: srv}
}

func token(t *testing.T, role, profile string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Role:      role,
		ProfileID: profile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-" + profile,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (ts *testServer) do(method, path, tok string, body any, header ...string) (*http.Response, map[string]any, []any) {
	ts.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		ts.t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	obj, _ := decoded.(map[string]any)
	list, _ := decoded.([]any)
	return resp, obj, list
}

func (ts *testServer) expect(resp *http.Response, status int) {
	ts.t.Helper()
	if resp.StatusCode != status {
		ts.t.Fatalf("%s %s: status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status)
	}
}

var mondaySchedule = map[string]any{
	"provider_id": providerID,
	"schedule": []map[string]any{{
		"day_of_week": 0,
		"time_slots": []map[string]any{{"start_time": "09:00", "end_time": "10:00", "session_duration": 30}},
	}},
}

func (ts *testServer) seedSchedule() {
	ts.t.Helper()
	resp, _, _ := ts.do(http.MethodPost, "/provider/availability", token(ts.t, auth.RoleProvider, providerID), mondaySchedule)
	ts.expect(resp, http.StatusOK)
}

func (ts *testServer) book(customer, date, start, end string, header ...string) (*http.Response, map[string]any) {
	ts.t.Helper()
	resp, body, _ := ts.do(http.MethodPost, "/customer/bookings", token(ts.t, auth.RoleCustomer, customer), map[string]any{
		"provider_id": providerID,
		"service_id":  serviceID,
		"date":        date,
		"start_time":  start,
		"end_time":    end,
	}, header...)
	return resp, body
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _, _ := ts.do(http.MethodGet, "/provider/availability", "", nil)
	ts.expect(resp, http.StatusUnauthorized)

	resp, _, _ = ts.do(http.MethodGet, "/provider/availability", token(t, auth.RoleCustomer, "cust-1"), nil)
	ts.expect(resp, http.StatusForbidden)

	resp, _, _ = ts.do(http.MethodGet, "/customer/bookings", token(t, auth.RoleProvider, providerID), nil)
	ts.expect(resp, http.StatusForbidden)
}

func TestSetAvailabilityReturnsWarnings(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, auth.RoleProvider, providerID)

	resp, body, _ := ts.do(http.MethodPost, "/provider/availability", tok, map[string]any{
		"schedule": []map[string]any{{
			"day_of_week": 2,
			"time_slots":  []map[string]any{{"start_time": "09:00", "end_time": "10:45", "session_duration": 30}},
		}},
	})
	ts.expect(resp, http.StatusOK)
	if body["message"] != "Availability updated successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	warnings, _ := body["warnings"].([]any)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", body["warnings"])
	}
	if w := warnings[0].(map[string]any); w["remainder_minutes"] != float64(15) || w["unused_time_range"] != "10:30-10:45" {
		t.Fatalf("warning = %v", w)
	}

	resp, body, _ = ts.do(http.MethodGet, "/provider/availability", tok, nil)
	ts.expect(resp, http.StatusOK)
	sched := body["schedule"].([]any)
	if len(sched) != 1 {
		t.Fatalf("schedule = %v", sched)
	}
	slot := sched[0].(map[string]any)["time_slots"].([]any)[0].(map[string]any)
	if slot["start_time"] != "09:00" || slot["end_time"] != "10:45" || slot["session_duration"] != float64(30) {
		t.Fatalf("slot = %v", slot)
	}
}

func TestSetAvailabilityRejectsInvalidSchedules(t *testing.T) {
	ts := newTestServer(t)
	tok := token(t, auth.RoleProvider, providerID)

	day := func(slots ...map[string]any) map[string]any {
		return map[string]any{"schedule": []map[string]any{{"day_of_week": 0, "time_slots": slots}}}
	}
	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"overlap", day(
			map[string]any{"start_time": "09:00", "end_time": "11:00"},
			map[string]any{"start_time": "10:00", "end_time": "12:00"},
		), http.StatusUnprocessableEntity},
		{"bad format", day(map[string]any{"start_time": "9am", "end_time": "11:00"}), http.StatusBadRequest},
		{"zero duration", day(map[string]any{"start_time": "09:00", "end_time": "11:00", "session_duration": 0}), http.StatusBadRequest},
		{"end before start", day(map[string]any{"start_time": "11:00", "end_time": "09:00"}), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _, _ := ts.do(http.MethodPost, "/provider/availability", tok, tc.body)
			ts.expect(resp, tc.status)
		})
	}
	if ws, _ := ts.store.Windows(context.Background(), providerID); len(ws) != 0 {
		t.Fatalf("invalid schedule was stored: %v", ws)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	ts := newTestServer(t)
	resp, body, _ := ts.do(http.MethodPost, "/provider/availability/preview", token(t, auth.RoleProvider, providerID), mondaySchedule)
	ts.expect(resp, http.StatusOK)
	if s := body["summary"].(map[string]any); s["total_sessions"] != float64(2) {
		t.Fatalf("summary = %v", s)
	}
	if ws, _ := ts.store.Windows(context.Background(), providerID); len(ws) != 0 {
		t.Fatalf("preview stored windows: %v", ws)
	}
}

func TestCreateBookingAndConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()

	resp, body := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	ts.expect(resp, http.StatusCreated)
	if body["message"] != "Booking request created successfully" || body["booking_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	cases := []struct {
		name             string
		date, start, end string
		status           int
		detail           string
	}{
		{"taken", "2024-01-15", "09:00", "09:30", http.StatusConflict, "Time slot is already booked"},
		{"off grid", "2024-01-15", "09:15", "09:45", http.StatusUnprocessableEntity, "Requested time is not available"},
		{"no availability", "2024-01-16", "09:00", "09:30", http.StatusUnprocessableEntity, "Provider has no availability set"},
		{"past", "2024-01-08", "09:00", "09:30", http.StatusUnprocessableEntity, "Requested time is in the past"},
		{"bad date", "15/01/2024", "09:00", "09:30", http.StatusBadRequest, invalidDateDetail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := ts.book("cust-2", tc.date, tc.start, tc.end)
			ts.expect(resp, tc.status)
			if body["detail"] != tc.detail {
				t.Fatalf("detail = %v, want %q", body["detail"], tc.detail)
			}
		})
	}

	resp, body, _ = ts.do(http.MethodGet, "/customer/providers/"+providerID+"/availability/2024-01-15", token(t, auth.RoleCustomer, "cust-2"), nil)
	ts.expect(resp, http.StatusOK)
	open := body["available_slots"].([]any)
	if len(open) != 1 || open[0].(map[string]any)["start_time"] != "09:30" {
		t.Fatalf("available_slots = %v", open)
	}
}

func TestCreateBookingUnknownService(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	resp, body, _ := ts.do(http.MethodPost, "/customer/bookings", token(t, auth.RoleCustomer, "cust-1"), map[string]any{
		"provider_id": providerID,
		"service_id":  "nope",
		"date":        "2024-01-15",
		"start_time":  "09:00",
		"end_time":    "09:30",
	})
	ts.expect(resp, http.StatusNotFound)
	if body["detail"] != "Service not found" {
		t.Fatalf("detail = %v", body["detail"])
	}
}

func TestCreateBookingIdempotencyKeyReplays(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()

	first, b1 := ts.book("cust-1", "2024-01-15", "09:00", "09:30", idempotencyHeader, "k-1")
	ts.expect(first, http.StatusCreated)
	again, b2 := ts.book("cust-1", "2024-01-15", "09:00", "09:30", idempotencyHeader, "k-1")
	ts.expect(again, http.StatusCreated)
	if b1["booking_id"] != b2["booking_id"] {
		t.Fatalf("replay returned %v, first was %v", b2["booking_id"], b1["booking_id"])
	}
	if again.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatal("replay header missing")
	}
}

func TestConcurrentBookingsSingleWinner(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()

	const n = 8
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := ts.book(fmt.Sprintf("cust-%d", i), "2024-01-15", "09:30", "10:00")
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	created := 0
	for _, s := range statuses {
		switch s {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", s)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}

func TestProviderCalendar(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	resp, _ := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	ts.expect(resp, http.StatusCreated)

	tok := token(t, auth.RoleCustomer, "cust-1")
	resp, _, list := ts.do(http.MethodGet, "/customer/providers/"+providerID+"/calendar/2024/1", tok, nil)
	ts.expect(resp, http.StatusOK)
	if len(list) != 31 {
		t.Fatalf("days = %d", len(list))
	}
	byDate := map[string]map[string]any{}
	for _, d := range list {
		m := d.(map[string]any)
		byDate[m["date"].(string)] = m
	}
	if d := byDate["2024-01-15"]; d["status"] != "partially_booked" || d["available_percentage"] != float64(50) {
		t.Fatalf("2024-01-15 = %v", d)
	}
	if d := byDate["2024-01-22"]; d["status"] != "available" {
		t.Fatalf("2024-01-22 = %v", d)
	}
	if d := byDate["2024-01-16"]; d["status"] != "unavailable" {
		t.Fatalf("2024-01-16 = %v", d)
	}

	resp, _, _ = ts.do(http.MethodGet, "/customer/providers/"+providerID+"/calendar/2024/13", tok, nil)
	ts.expect(resp, http.StatusBadRequest)
	resp, _, _ = ts.do(http.MethodGet, "/customer/providers/unknown/calendar/2024/1", tok, nil)
	ts.expect(resp, http.StatusNotFound)
}

func bookingID(t *testing.T, body map[string]any) string {
	t.Helper()
	id, ok := body["booking_id"].(string)
	if !ok || id == "" {
		t.Fatalf("no booking_id in %v", body)
	}
	return id
}

func TestAvailableSlotsExcludesMovingBooking(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	_, b := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	id := bookingID(t, b)
	_, other := ts.book("cust-2", "2024-01-15", "09:30", "10:00")
	bookingID(t, other)

	tok := token(t, auth.RoleProvider, providerID)
	resp, body, _ := ts.do(http.MethodGet, "/provider/bookings/"+id+"/available-slots?date=2024-01-15", tok, nil)
	ts.expect(resp, http.StatusOK)
	open := body["available_slots"].([]any)
	booked := body["booked_slots"].([]any)
	if len(open) != 1 || open[0].(map[string]any)["start_time"] != "09:00" {
		t.Fatalf("available_slots = %v", open)
	}
	if len(booked) != 1 || booked[0].(map[string]any)["start_time"] != "09:30" {
		t.Fatalf("booked_slots = %v", booked)
	}

	resp, body, _ = ts.do(http.MethodGet, "/provider/bookings/"+id+"/available-slots?date=2024-01-16", tok, nil)
	ts.expect(resp, http.StatusOK)
	if body["message"] == nil {
		t.Fatalf("expected message for a day without availability: %v", body)
	}

	resp, _, _ = ts.do(http.MethodGet, "/provider/bookings/"+id+"/available-slots?date=2024-01-15", token(t, auth.RoleProvider, "prov-2"), nil)
	ts.expect(resp, http.StatusForbidden)
	resp, _, _ = ts.do(http.MethodGet, "/provider/bookings/"+id+"/available-slots", tok, nil)
	ts.expect(resp, http.StatusBadRequest)
}

func TestRescheduleBooking(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	_, b := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	id := bookingID(t, b)
	_, b2 := ts.book("cust-2", "2024-01-22", "09:00", "09:30")
	bookingID(t, b2)

	tok := token(t, auth.RoleProvider, providerID)
	path := "/provider/bookings/" + id + "/reschedule"

	resp, body, _ := ts.do(http.MethodPut, path, tok, map[string]any{"date": "2024-01-22", "start_time": "09:00", "end_time": "09:30"})
	ts.expect(resp, http.StatusConflict)
	if body["detail"] != "Time slot is already booked" {
		t.Fatalf("detail = %v", body["detail"])
	}

	// Same-day move onto a session adjacent to itself.
	resp, body, _ = ts.do(http.MethodPut, path, tok, map[string]any{"date": "2024-01-15", "start_time": "09:30", "end_time": "10:00"})
	ts.expect(resp, http.StatusOK)
	if body["booking_id"] != id || body["date"] != "2024-01-15" || body["start_time"] != "09:30" {
		t.Fatalf("body = %v", body)
	}

	resp, _, _ = ts.do(http.MethodPut, path, token(t, auth.RoleProvider, "prov-2"), map[string]any{"date": "2024-01-22", "start_time": "09:30", "end_time": "10:00"})
	ts.expect(resp, http.StatusForbidden)
}

func TestRescheduleWindow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	_, b := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	id := bookingID(t, b)

	tok := token(t, auth.RoleProvider, providerID)
	resp, body, _ := ts.do(http.MethodGet, "/provider/bookings/reschedule-window?booking_id="+id, tok, nil)
	ts.expect(resp, http.StatusOK)
	dates := body["dates"].([]any)
	if len(dates) != reschedule.DefaultMaxHorizonDays {
		t.Fatalf("dates = %d", len(dates))
	}
	first := dates[0].(map[string]any)
	if first["date"] != "2024-01-14" || first["is_today"] != true || first["has_availability"] != false {
		t.Fatalf("first = %v", first)
	}
	monday := dates[1].(map[string]any)
	if monday["date"] != "2024-01-15" || monday["is_tomorrow"] != true || monday["available_count"] != float64(2) {
		t.Fatalf("monday = %v", monday)
	}

	resp, body, _ = ts.do(http.MethodGet, "/provider/bookings/reschedule-window?booking_id="+id+"&start_date=2024-01-08&end_date=2024-01-08", tok, nil)
	ts.expect(resp, http.StatusOK)
	past := body["dates"].([]any)[0].(map[string]any)
	if past["is_past"] != true || past["available_count"] != float64(0) || len(past["available_slots"].([]any)) != 0 {
		t.Fatalf("past = %v", past)
	}

	resp, _, _ = ts.do(http.MethodGet, "/provider/bookings/reschedule-window?booking_id="+id+"&start_date=2024-01-20&end_date=2024-01-18", tok, nil)
	ts.expect(resp, http.StatusBadRequest)
	resp, _, _ = ts.do(http.MethodGet, "/provider/bookings/reschedule-window", tok, nil)
	ts.expect(resp, http.StatusBadRequest)
}

func TestBookingLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	_, b := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	id := bookingID(t, b)

	prov := token(t, auth.RoleProvider, providerID)
	resp, _, list := ts.do(http.MethodGet, "/provider/bookings/pending", prov, nil)
	ts.expect(resp, http.StatusOK)
	if len(list) != 1 || list[0].(map[string]any)["customer_name"] != "Ada" {
		t.Fatalf("pending = %v", list)
	}

	resp, body, _ := ts.do(http.MethodPost, "/provider/bookings/"+id+"/accept", prov, nil)
	ts.expect(resp, http.StatusOK)
	if body["message"] != "Booking accepted" {
		t.Fatalf("message = %v", body["message"])
	}
	resp, _, _ = ts.do(http.MethodPost, "/provider/bookings/"+id+"/reject", prov, nil)
	ts.expect(resp, http.StatusConflict)
	resp, _, _ = ts.do(http.MethodPost, "/provider/bookings/"+id+"/accept", token(t, auth.RoleProvider, "prov-2"), nil)
	ts.expect(resp, http.StatusForbidden)

	resp, _, _ = ts.do(http.MethodDelete, "/customer/bookings/"+id, token(t, auth.RoleCustomer, "cust-2"), nil)
	ts.expect(resp, http.StatusNotFound)

	cust := token(t, auth.RoleCustomer, "cust-1")
	resp, body, _ = ts.do(http.MethodDelete, "/customer/bookings/"+id, cust, nil)
	ts.expect(resp, http.StatusOK)
	if body["message"] != "Booking cancelled successfully" {
		t.Fatalf("message = %v", body["message"])
	}

	resp, _, list = ts.do(http.MethodGet, "/customer/bookings", cust, nil)
	ts.expect(resp, http.StatusOK)
	if len(list) != 1 || list[0].(map[string]any)["status"] != "cancelled" || list[0].(map[string]any)["provider_name"] != "Dr. Lee" {
		t.Fatalf("customer bookings = %v", list)
	}

	// The cancelled booking no longer holds its session.
	resp, _ = ts.book("cust-2", "2024-01-15", "09:00", "09:30")
	ts.expect(resp, http.StatusCreated)
}

func TestSearchProviders(t *testing.T) {
	ts := newTestServer(t)
	resp, _, list := ts.do(http.MethodGet, "/customer/providers/search?name=lee", token(t, auth.RoleCustomer, "cust-1"), nil)
	ts.expect(resp, http.StatusOK)
	if len(list) != 1 {
		t.Fatalf("providers = %v", list)
	}
	svcs := list[0].(map[string]any)["services"].([]any)
	if len(svcs) != 1 || svcs[0].(map[string]any)["price"] != float64(50) {
		t.Fatalf("services = %v", svcs)
	}
}

func TestListServices(t *testing.T) {
	ts := newTestServer(t)

	resp, _, list := ts.do(http.MethodGet, "/provider/services", token(t, auth.RoleProvider, providerID), nil)
	ts.expect(resp, http.StatusOK)
	if len(list) != 1 || list[0].(map[string]any)["service_id"] != serviceID || list[0].(map[string]any)["price"] != float64(50) {
		t.Fatalf("services = %v", list)
	}

	resp, _, list = ts.do(http.MethodGet, "/provider/services", token(t, auth.RoleProvider, "prov-2"), nil)
	ts.expect(resp, http.StatusOK)
	if list == nil || len(list) != 0 {
		t.Fatalf("expected an empty list, got %v", list)
	}

	resp, _, _ = ts.do(http.MethodGet, "/provider/services", token(t, auth.RoleCustomer, "cust-1"), nil)
	ts.expect(resp, http.StatusForbidden)
}

func TestCustomerSnapshot(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSchedule()
	_, b := ts.book("cust-1", "2024-01-15", "09:00", "09:30")
	bookingID(t, b)

	prov := token(t, auth.RoleProvider, providerID)
	resp, body, _ := ts.do(http.MethodGet, "/provider/customer/cust-1/snapshot", prov, nil)
	ts.expect(resp, http.StatusOK)
	if body["total_bookings"] != float64(1) || body["total_visits"] != float64(0) || body["last_service_date"] != nil {
		t.Fatalf("snapshot before any visit = %v", body)
	}

	ts.store.mu.Lock()
	ts.store.bookings["bk-past"] = model.Booking{
		ID: "bk-past", ProviderID: providerID, CustomerID: "cust-1", ServiceID: serviceID,
		Date: timegrid.Date{Year: 2024, Month: time.January, Day: 8}, StartMinute: 540, EndMinute: 570,
		Status: model.StatusCompleted, Cost: 50,
	}
	ts.store.mu.Unlock()

	resp, body, _ = ts.do(http.MethodGet, "/provider/customer/cust-1/snapshot", prov, nil)
	ts.expect(resp, http.StatusOK)
	if body["total_visits"] != float64(1) || body["total_spent"] != float64(50) {
		t.Fatalf("totals = %v", body)
	}
	if body["last_service_date"] != "2024-01-08" || body["last_service_name"] != "Consultation" {
		t.Fatalf("last service = %v", body)
	}

	resp, body, _ = ts.do(http.MethodGet, "/provider/customer/cust-1/snapshot", token(t, auth.RoleProvider, "prov-2"), nil)
	ts.expect(resp, http.StatusNotFound)
	if body["detail"] != "Customer not found" {
		t.Fatalf("detail = %v", body["detail"])
	}
	resp, _, _ = ts.do(http.MethodGet, "/provider/customer/cust-1/snapshot", token(t, auth.RoleCustomer, "cust-1"), nil)
	ts.expect(resp, http.StatusForbidden)
}
