// Package oracle decides whether a feed observation may settle a market.
package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

// MaxStaleness is how old an observation may be at resolution time.
const MaxStaleness = 5 * time.Minute

// DefaultMaxConfidence is the confidence bound a deployment starts with.
const DefaultMaxConfidence = 0.05

// FeedReader returns the latest observation of a feed.
type FeedReader interface {
	ReadFeed(ctx context.Context, feed domain.Address) (domain.FeedObservation, error)
}

// Gate checks an observation and turns it into a boolean result.
type Gate struct {
	// Owner is the only program whose feeds are trusted.
	Owner         domain.Address
	MaxConfidence float64
}

// NewGate returns a gate trusting the oracle program's feeds. Observations
// with a confidence interval above maxConfidence are rejected; zero admits
// only exact observations.
func NewGate(maxConfidence float64) Gate {
	return Gate{Owner: pda.OracleProgramID, MaxConfidence: maxConfidence}
}

// Resolve validates obs against feed and now, then compares its value with
// target using mode. The checks run in a fixed order and the first failure
// is returned.
func (g Gate) Resolve(obs domain.FeedObservation, feed domain.Address, now time.Time, target float64, mode domain.RangeMode) (bool, error) {
	if obs.Feed != feed || obs.Owner != g.Owner || math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
		return false, fmt.Errorf("oracle: feed %s: %w", feed.Hex(), domain.ErrInvalidSwitchboardAccount)
	}

	age := now.Sub(obs.LastUpdate)
	if age > MaxStaleness || age < -MaxStaleness {
		return false, fmt.Errorf("oracle: feed %s updated %s ago: %w", feed.Hex(), age.Truncate(time.Second), domain.ErrStaleFeed)
	}

	ci := obs.ConfidenceInterval
	if math.IsNaN(ci) || ci < 0 || ci > g.MaxConfidence {
		return false, fmt.Errorf("oracle: confidence %v above %v: %w", ci, g.MaxConfidence, domain.ErrConfidenceIntervalExceeded)
	}

	switch mode {
	case domain.RangeGreaterThan:
		return obs.Value > target, nil
	case domain.RangeEqual:
		// The feed cannot distinguish values inside its own interval.
		return math.Abs(obs.Value-target) <= ci, nil
	case domain.RangeLessThan:
		return obs.Value < target, nil
	default:
		return false, fmt.Errorf("oracle: range mode %d: %w", mode, domain.ErrInvalidParams)
	}
}
