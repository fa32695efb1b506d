package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHubRoutesByMarket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil, "node", slog.New(slog.DiscardHandler))
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	all := dial(t, srv, "")
	one := dial(t, srv, "?market=m2")
	if read(t, all)["type"] != "hello" || read(t, one)["type"] != "hello" {
		t.Fatal("expected hello frames")
	}

	// Both clients are registered before their hello frame is queued.
	_ = hub.PublishEvents(ctx, []domain.Event{
		{ID: "1", Kind: domain.EventBetting, MarketID: "m1"},
		{ID: "2", Kind: domain.EventBetting, MarketID: "m2"},
	})

	got := read(t, all)
	if got["channel"] != domain.ChannelEvents || got["payload"].(map[string]any)["id"] != "1" {
		t.Fatalf("all-events client got %v", got)
	}
	got = read(t, one)
	if got["channel"] != domain.ChannelMarketPrefix+"m2" || got["payload"].(map[string]any)["id"] != "2" {
		t.Fatalf("market client got %v", got)
	}
}

func TestValidChannel(t *testing.T) {
	for ch, want := range map[string]bool{
		domain.ChannelEvents:               true,
		domain.ChannelMarketPrefix + "abc": true,
		domain.ChannelMarketPrefix:         false,
		"ch:book:*":                        false,
	} {
		if validChannel(ch) != want {
			t.Errorf("validChannel(%q) = %v", ch, !want)
		}
	}
}

func TestHubStoppedDoesNotBlockConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub := NewHub(nil, "node", slog.New(slog.DiscardHandler))
	if err := hub.Run(ctx); err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	served := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		served <- struct{}{}
	}))
	defer srv.Close()

	conn := dial(t, srv, "")
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked after the hub stopped")
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}

	left := make(chan struct{})
	go func() {
		hub.leave(&client{hub: hub})
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect blocked after the hub stopped")
	}
}
