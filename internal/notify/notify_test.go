package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func mustEvent(t *testing.T, kind domain.EventKind, payload any) domain.Event {
	t.Helper()
	ev, err := domain.NewEvent(kind, "m-1", payload)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name      string
		ev        domain.Event
		wantKind  string
		wantTitle string
		wantMsg   string
		skip      bool
	}{
		{
			name:      "created",
			ev:        mustEvent(t, domain.EventMarketCreated, domain.MarketCreatedEvent{MarketID: "m-1", Value: 100000, Range: domain.RangeGreaterThan, Date: 0}),
			wantKind:  KindMarketCreated,
			wantTitle: "Market created: m-1",
			wantMsg:   "above 100000 at 1970-01-01T00:00:00Z",
		},
		{
			name:      "activated",
			ev:        mustEvent(t, domain.EventMarketStatusUpdated, domain.MarketStatusUpdatedEvent{MarketID: "m-1", From: "prepare", To: "active"}),
			wantKind:  KindMarketActivated,
			wantTitle: "Market active: m-1",
		},
		{
			name: "prepare transition is ignored",
			ev:   mustEvent(t, domain.EventMarketStatusUpdated, domain.MarketStatusUpdatedEvent{MarketID: "m-1", From: "created", To: "prepare"}),
			skip: true,
		},
		{
			name:      "resolved",
			ev:        mustEvent(t, domain.EventOracleResUpdated, domain.OracleResUpdatedEvent{MarketID: "m-1", OracleRes: 101250.5, Result: true}),
			wantKind:  KindMarketResolved,
			wantTitle: "Market resolved: m-1",
			wantMsg:   "Outcome YES (oracle value 101250.5)",
		},
		{
			name: "bets are not reported",
			ev:   mustEvent(t, domain.EventBetting, domain.BettingEvent{MarketID: "m-1"}),
			skip: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			note, ok, err := describe(tt.ev)
			if err != nil {
				t.Fatalf("describe: %v", err)
			}
			if ok == tt.skip {
				t.Fatalf("ok = %v, want %v", ok, !tt.skip)
			}
			if tt.skip {
				return
			}
			if note.kind != tt.wantKind || note.title != tt.wantTitle {
				t.Errorf("got %q/%q, want %q/%q", note.kind, note.title, tt.wantKind, tt.wantTitle)
			}
			if !strings.Contains(note.message, tt.wantMsg) {
				t.Errorf("message %q does not contain %q", note.message, tt.wantMsg)
			}
		})
	}
}

func TestNotifierFiltersAndDelivers(t *testing.T) {
	ok := &fakeSender{}
	failing := &fakeSender{err: errors.New("down")}
	n := NewNotifier([]Sender{failing, ok}, []string{KindMarketResolved}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	events := []domain.Event{
		mustEvent(t, domain.EventMarketCreated, domain.MarketCreatedEvent{MarketID: "m-1"}),
		mustEvent(t, domain.EventOracleResUpdated, domain.OracleResUpdatedEvent{MarketID: "m-1"}),
	}
	if err := n.PublishEvents(ctx, events); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ok.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := ok.sent()
	if len(got) != 1 || got[0] != "Market resolved: m-1" {
		t.Fatalf("sent = %v, want only the resolution", got)
	}
	if len(failing.sent()) != 1 {
		t.Errorf("failing sender should still be attempted")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}

func TestPublishEventsRejectsBadPayload(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	bad := domain.Event{Kind: domain.EventMarketCreated, Payload: json.RawMessage(`{`)}
	if err := n.PublishEvents(context.Background(), []domain.Event{bad}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDiscordSender(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if body["content"] != "**Title**\nbody" {
		t.Errorf("content = %q", body["content"])
	}

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer fail.Close()
	if err := NewDiscordSender(fail.URL).Send(context.Background(), "t", "m"); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestTelegramSender(t *testing.T) {
	var (
		mu       sync.Mutex
		text     string
		mode     string
		attempts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			mu.Lock()
			attempts++
			first := attempts == 1
			text = r.FormValue("text")
			mode = r.FormValue("parse_mode")
			mu.Unlock()
			if first {
				io.WriteString(w, `{"ok":false,"error_code":500,"description":"try again"}`)
				return
			}
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sender, err := NewTelegramSender("TOKEN", "42", srv.URL+"/bot%s/%s", 3, time.Millisecond)
	if err != nil {
		t.Fatalf("NewTelegramSender: %v", err)
	}
	if err := sender.Send(context.Background(), "Market resolved: m-1", "Outcome YES."); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if mode != "MarkdownV2" {
		t.Errorf("parse_mode = %q", mode)
	}
	if want := "*Market resolved: m\\-1*\nOutcome YES\\."; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestTelegramSenderRejectsBadChatID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot","username":"bot"}}`)
	}))
	defer srv.Close()
	if _, err := NewTelegramSender("TOKEN", "not-a-number", srv.URL+"/bot%s/%s", 1, time.Millisecond); err == nil {
		t.Fatal("expected chat id error")
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	if got := escapeMarkdownV2("a_b.c!(d)"); got != `a\_b\.c\!\(d\)` {
		t.Errorf("got %q", got)
	}
}
