package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"task-manager/models"
)

func TestMemory_SlidingWindow(t *testing.T) {
	m := NewMemory()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "k", 3, time.Minute); !ok {
			t.Fatalf("hit %d denied", i)
		}
	}
	if ok, _ := m.Allow(ctx, "k", 3, time.Minute); ok {
		t.Fatal("fourth hit allowed")
	}
	if ok, _ := m.Allow(ctx, "other", 3, time.Minute); !ok {
		t.Fatal("keys must be independent")
	}

	clock = clock.Add(61 * time.Second)
	if ok, _ := m.Allow(ctx, "k", 3, time.Minute); !ok {
		t.Fatal("window did not slide")
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	h := Middleware(NewMemory(), "login", Rule{Limit: 1, Window: time.Minute}, false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", rec.Code)
	}
	var body models.Error
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "too_many_requests" || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("body = %+v header = %q", body, rec.Header().Get("Retry-After"))
	}

	other := httptest.NewRequest(http.MethodPost, "/login", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("other client = %d", rec.Code)
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	r := NewRedis("127.0.0.1:1")
	defer r.Close()
	h := Middleware(r, "home", HomeRule, false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unreachable redis should not block, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	if got := ClientIP(req, false); got != "192.168.1.9" {
		t.Fatalf("remote = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req, false); got != "192.168.1.9" {
		t.Fatalf("untrusted forwarded header used: %q", got)
	}
	if got := ClientIP(req, true); got != "203.0.113.5" {
		t.Fatalf("forwarded = %q", got)
	}
}

func TestMiddleware_IgnoresSpoofedForwardedFor(t *testing.T) {
	h := Middleware(NewMemory(), "verify_otp", Rule{Limit: 2, Window: time.Minute}, false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/verify-otp", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Fatalf("limited = %d, want 8", limited)
	}
}

func TestAllow_NilLimiter(t *testing.T) {
	if !Allow(context.Background(), nil, Key("x", "y"), LoginRule) {
		t.Fatal("nil limiter must allow")
	}
	if got := Key("verify_otp", "challenge", "abc"); got != "ratelimit:verify_otp:challenge:abc" {
		t.Fatalf("key = %q", got)
	}
}

func TestMemory_SweepDropsIdleKeys(t *testing.T) {
	m := NewMemory()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		m.Allow(ctx, "ip:"+strconv.Itoa(i), 5, time.Minute)
	}
	m.Allow(ctx, "long", 5, time.Hour)
	if m.Len() != 101 {
		t.Fatalf("len = %d", m.Len())
	}

	clock = clock.Add(2 * time.Minute)
	if n := m.Sweep(); n != 100 {
		t.Fatalf("swept %d, want 100", n)
	}
	if m.Len() != 1 {
		t.Fatalf("len after sweep = %d", m.Len())
	}
}
