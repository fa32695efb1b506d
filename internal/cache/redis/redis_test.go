package redis

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/pda"
)

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"", []string{"market", "m1"}, "market:m1"},
		{"mm", []string{"market", "m1"}, "mm:market:m1"},
		{"mm:", []string{"lock:account:0xab"}, "mm:lock:account:0xab"},
	}
	for _, tt := range tests {
		c := NewFromRedis(nil, tt.prefix)
		if got := c.Key(tt.parts...); got != tt.want {
			t.Errorf("Key(%q, %v) = %q, want %q", tt.prefix, tt.parts, got, tt.want)
		}
	}
}

func TestParseFeed(t *testing.T) {
	feed := pda.ProgramID("feed/btc")
	at := time.Unix(1_700_000_000, 5).UTC()
	obs, err := parseFeed(feed, map[string]string{
		"owner": pda.OracleProgramID.Hex(),
		"value": "101250.5",
		"ci":    "0.25",
		"ts":    "1700000000000000005",
	})
	if err != nil {
		t.Fatal(err)
	}
	if obs.Feed != feed || obs.Owner != pda.OracleProgramID || obs.Value != 101250.5 || obs.ConfidenceInterval != 0.25 || !obs.LastUpdate.Equal(at) {
		t.Fatalf("obs = %+v", obs)
	}

	bad := []map[string]string{
		{"value": "1", "ci": "0", "ts": "0"},
		{"owner": pda.OracleProgramID.Hex(), "value": "x", "ci": "0", "ts": "0"},
		{"owner": pda.OracleProgramID.Hex(), "value": "1", "ci": "0", "ts": "soon"},
	}
	for i, vals := range bad {
		if _, err := parseFeed(feed, vals); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}

	obs, err = parseFeed(feed, map[string]string{
		"owner": pda.OracleProgramID.Hex(), "value": "NaN", "ci": "0", "ts": "0",
	})
	if err != nil || !math.IsNaN(obs.Value) {
		t.Fatalf("NaN must round-trip so the gate can reject it: %v %v", obs.Value, err)
	}
}
