package oracle

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

var (
	testFeed = pda.ProgramID("feed-btc-usd")
	testNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func observation(value, ci float64, age time.Duration) domain.FeedObservation {
	return domain.FeedObservation{
		Feed:               testFeed,
		Owner:              pda.OracleProgramID,
		Value:              value,
		ConfidenceInterval: ci,
		LastUpdate:         testNow.Add(-age),
	}
}

func TestGateChecksInOrder(t *testing.T) {
	g := NewGate(0.5)

	foreign := observation(60_000, 9, time.Hour)
	foreign.Owner = pda.ProgramID("impostor")

	tests := []struct {
		name    string
		obs     domain.FeedObservation
		wantErr error
	}{
		// A foreign, stale and imprecise feed reports the first failure.
		{name: "wrong owner", obs: foreign, wantErr: domain.ErrInvalidSwitchboardAccount},
		{name: "stale beats confidence", obs: observation(60_000, 9, 6*time.Minute), wantErr: domain.ErrStaleFeed},
		{name: "from the future", obs: observation(60_000, 0.1, -10*time.Minute), wantErr: domain.ErrStaleFeed},
		{name: "wide interval", obs: observation(60_000, 0.6, time.Minute), wantErr: domain.ErrConfidenceIntervalExceeded},
		{name: "nan value", obs: observation(math.NaN(), 0.1, time.Minute), wantErr: domain.ErrInvalidSwitchboardAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(tt.obs, testFeed, testNow, 50_000, domain.RangeGreaterThan)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateRejectsMismatchedFeed(t *testing.T) {
	g := NewGate(0.5)
	obs := observation(60_000, 0.1, time.Minute)
	if _, err := g.Resolve(obs, pda.ProgramID("feed-eth-usd"), testNow, 50_000, domain.RangeGreaterThan); !errors.Is(err, domain.ErrInvalidSwitchboardAccount) {
		t.Fatalf("err = %v, want ErrInvalidSwitchboardAccount", err)
	}
}

func TestGateAcceptsBoundaryAge(t *testing.T) {
	g := NewGate(0.5)
	if _, err := g.Resolve(observation(1, 0.5, MaxStaleness), testFeed, testNow, 0, domain.RangeGreaterThan); err != nil {
		t.Fatalf("observation exactly %s old rejected: %v", MaxStaleness, err)
	}
}

func TestGateCompare(t *testing.T) {
	g := NewGate(0.5)
	tests := []struct {
		name   string
		value  float64
		ci     float64
		target float64
		mode   domain.RangeMode
		want   bool
	}{
		{name: "gt true", value: 50_001, target: 50_000, mode: domain.RangeGreaterThan, want: true},
		{name: "gt equal is false", value: 50_000, target: 50_000, mode: domain.RangeGreaterThan, want: false},
		{name: "lt true", value: 49_999, target: 50_000, mode: domain.RangeLessThan, want: true},
		{name: "lt false", value: 50_001, target: 50_000, mode: domain.RangeLessThan, want: false},
		{name: "eq exact", value: 50_000, target: 50_000, mode: domain.RangeEqual, want: true},
		{name: "eq inside interval", value: 50_000.3, ci: 0.4, target: 50_000, mode: domain.RangeEqual, want: true},
		{name: "eq outside interval", value: 50_000.3, ci: 0.2, target: 50_000, mode: domain.RangeEqual, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Resolve(observation(tt.value, tt.ci, time.Minute), testFeed, testNow, tt.target, tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGateZeroBoundAdmitsOnlyExactObservations(t *testing.T) {
	g := NewGate(0)
	if g.MaxConfidence != 0 {
		t.Fatalf("MaxConfidence = %v, want 0", g.MaxConfidence)
	}
	if _, err := g.Resolve(observation(60_000, 0.5, time.Minute), testFeed, testNow, 50_000, domain.RangeGreaterThan); !errors.Is(err, domain.ErrConfidenceIntervalExceeded) {
		t.Fatalf("ci 0.5 under a zero bound: err = %v", err)
	}
	if _, err := g.Resolve(observation(60_000, 1e-9, time.Minute), testFeed, testNow, 50_000, domain.RangeGreaterThan); !errors.Is(err, domain.ErrConfidenceIntervalExceeded) {
		t.Fatalf("tiny ci under a zero bound: err = %v", err)
	}
	got, err := g.Resolve(observation(60_000, 0, time.Minute), testFeed, testNow, 50_000, domain.RangeGreaterThan)
	if err != nil || !got {
		t.Fatalf("exact observation = %v, %v", got, err)
	}
}

func TestDefaultGateRejectsWideInterval(t *testing.T) {
	g := NewGate(DefaultMaxConfidence)
	if _, err := g.Resolve(observation(60_000, 0.06, time.Minute), testFeed, testNow, 50_000, domain.RangeGreaterThan); !errors.Is(err, domain.ErrConfidenceIntervalExceeded) {
		t.Fatalf("ci 0.06 under the default bound: err = %v", err)
	}
}
