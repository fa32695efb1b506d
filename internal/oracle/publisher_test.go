package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

type captureWriter struct {
	got []domain.FeedObservation
}

func (w *captureWriter) WriteFeed(_ context.Context, obs domain.FeedObservation) error {
	w.got = append(w.got, obs)
	return nil
}

func TestPublisherStampsOwner(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	feed := pda.ProgramID("feed/sol-usd")
	obs, err := p.PublishFeed(context.Background(), feed, 142.5, 0.2, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if obs.Owner != pda.OracleProgramID || !obs.LastUpdate.Equal(now) {
		t.Fatalf("observation = %+v", obs)
	}
	if len(w.got) != 1 || w.got[0] != obs {
		t.Fatalf("stored %+v", w.got)
	}

	// What the publisher writes must pass the gate it feeds.
	got, err := NewGate(0.5).Resolve(obs, feed, now, 100, domain.RangeGreaterThan)
	if err != nil || !got {
		t.Fatalf("Resolve = %v, %v", got, err)
	}
}

func TestPublisherRejects(t *testing.T) {
	p := NewPublisher(&captureWriter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	feed := pda.ProgramID("feed/x")
	tests := []struct {
		name  string
		feed  domain.Address
		value float64
		ci    float64
	}{
		{"zero feed", domain.ZeroAddress, 1, 0},
		{"nan value", feed, math.NaN(), 0},
		{"infinite value", feed, math.Inf(1), 0},
		{"negative confidence", feed, 1, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.PublishFeed(context.Background(), tt.feed, tt.value, tt.ci, time.Time{})
			if !errors.Is(err, domain.ErrInvalidParams) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
