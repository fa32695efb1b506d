package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header map[string]string
		want   int
	}{
		{"disabled", "", map[string]string{"X-API-Key": "x"}, http.StatusForbidden},
		{"missing", "secret", nil, http.StatusUnauthorized},
		{"wrong", "secret", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key", "secret", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/faucet", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			Auth(tt.key)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type countLimiter struct {
	n    int
	keys []string
	err  error
}

func (c *countLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	c.keys = append(c.keys, key)
	c.n++
	return c.n <= limit, c.err
}

func TestRateLimit(t *testing.T) {
	lim := &countLimiter{}
	h := RateLimit(lim, 2, time.Minute, slog.New(slog.DiscardHandler))(ok)
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
		if i == 2 && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
		}
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if lim.keys[0] != "api:203.0.113.9" {
		t.Fatalf("key = %q", lim.keys[0])
	}

	failing := RateLimit(&countLimiter{err: errors.New("redis down")}, 0, time.Second, slog.New(slog.DiscardHandler))(ok)
	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter error must fail open, got %d", rec.Code)
	}
}

func TestLoggingRequestID(t *testing.T) {
	h := Logging(slog.New(slog.DiscardHandler))(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("no request id assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("request id = %q, want echo", got)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/tx", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tx", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin allowed")
	}
}
