package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

// FeedWriter stores feed observations.
type FeedWriter interface {
	WriteFeed(ctx context.Context, obs domain.FeedObservation) error
}

// Publisher writes observations on behalf of the oracle program. It backs
// the admin feed endpoint for local and test deployments.
type Publisher struct {
	store  FeedWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing to store.
func NewPublisher(store FeedWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "oracle_publisher")),
	}
}

// PublishFeed records value for feed. A zero at means now.
func (p *Publisher) PublishFeed(ctx context.Context, feed domain.Address, value, confidence float64, at time.Time) (domain.FeedObservation, error) {
	if feed == domain.ZeroAddress {
		return domain.FeedObservation{}, fmt.Errorf("oracle: publish: zero feed address: %w", domain.ErrInvalidParams)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.FeedObservation{}, fmt.Errorf("oracle: publish: value %v: %w", value, domain.ErrInvalidParams)
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 {
		return domain.FeedObservation{}, fmt.Errorf("oracle: publish: confidence %v: %w", confidence, domain.ErrInvalidParams)
	}
	if at.IsZero() {
		at = p.now()
	}
	obs := domain.FeedObservation{
		Feed:               feed,
		Owner:              pda.OracleProgramID,
		Value:              value,
		ConfidenceInterval: confidence,
		LastUpdate:         at.UTC(),
	}
	if err := p.store.WriteFeed(ctx, obs); err != nil {
		return domain.FeedObservation{}, fmt.Errorf("oracle: publish %s: %w", feed.Hex(), err)
	}
	p.logger.Info("oracle: feed updated",
		slog.String("feed", feed.Hex()),
		slog.Float64("value", value),
		slog.Float64("confidence", confidence),
	)
	return obs, nil
}
