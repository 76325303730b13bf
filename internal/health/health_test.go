package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedSessions int

func (f fixedSessions) ActiveSessions() int { return int(f) }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New(nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllChecksPass(t *testing.T) {
	h := New(nil,
		Checker{Name: "control", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "tap", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Checks["control"] != "ok" || body.Checks["tap"] != "ok" {
		t.Errorf("checks = %v, want all ok", body.Checks)
	}
}

func TestReadyz_FailingCheckReturns503(t *testing.T) {
	h := New(nil,
		Checker{Name: "control", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "tap", Check: func(_ context.Context) error {
			return errors.New("no channels answered")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	if body.Checks["control"] != "ok" {
		t.Errorf("control check = %q", body.Checks["control"])
	}
	if body.Checks["tap"] != "fail: no channels answered" {
		t.Errorf("tap check = %q", body.Checks["tap"])
	}
}

func TestStatusz_ReportsSessions(t *testing.T) {
	h := New(fixedSessions(3))

	req := httptest.NewRequest("GET", "/statusz", nil)
	rec := httptest.NewRecorder()
	h.Statusz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body snapshot
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.ActiveSessions != 3 {
		t.Errorf("active_sessions = %d, want 3", body.ActiveSessions)
	}
	if body.Uptime == "" {
		t.Error("uptime should be set")
	}
}

func TestStatusz_NilCounter(t *testing.T) {
	h := New(nil)

	req := httptest.NewRequest("GET", "/statusz", nil)
	rec := httptest.NewRecorder()
	h.Statusz(rec, req)

	var body snapshot
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.ActiveSessions != 0 {
		t.Errorf("active_sessions = %d, want 0", body.ActiveSessions)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(fixedSessions(0),
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/statusz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(nil,
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
