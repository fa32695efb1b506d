package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

func TestWriteErr(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantName string
	}{
		{fmt.Errorf("wrapped: %w", domain.ErrMarketNotActive), http.StatusUnprocessableEntity, "MarketNotActive"},
		{fmt.Errorf("memory: %w", domain.ErrNotFound), http.StatusNotFound, ""},
		{domain.ErrAlreadyProcessed, http.StatusConflict, ""},
		{domain.ErrExpired, http.StatusBadRequest, ""},
		{domain.ErrRateLimited, http.StatusTooManyRequests, ""},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeErr(rec, slog.New(slog.DiscardHandler), httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		if rec.Code != tt.wantCode {
			t.Errorf("%v: status %d, want %d", tt.err, rec.Code, tt.wantCode)
			continue
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Name != tt.wantName {
			t.Errorf("%v: name %q, want %q", tt.err, body.Error.Name, tt.wantName)
		}
		if tt.wantCode == http.StatusInternalServerError && body.Error.Message != "internal error" {
			t.Errorf("internal error leaked: %q", body.Error.Message)
		}
	}
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=900&offset=3&since=1700000000&until=2026-10-01T00:00:00Z", nil)
	opts, err := parseListOpts(req)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Limit != 500 || opts.Offset != 3 {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.Since == nil || opts.Since.Unix() != 1_700_000_000 || opts.Until == nil || opts.Until.Year() != 2026 {
		t.Fatalf("range = %v..%v", opts.Since, opts.Until)
	}

	def, _ := parseListOpts(httptest.NewRequest(http.MethodGet, "/?limit=-1", nil))
	if def.Limit != 50 {
		t.Fatalf("default limit = %d", def.Limit)
	}
}
