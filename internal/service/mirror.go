package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

const rescanPageSize = 500

// Mirror keeps the read-side market table in step with the account store.
// It reacts to committed events and rescans every program-owned market on
// an interval to repair anything a missed event left stale. It only ever
// reads core state.
type Mirror struct {
	programID domain.Address
	accounts  domain.AccountStore
	mirror    domain.MarketMirror
	cache     domain.MarketCache
	bus       domain.SignalBus
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

var _ vm.EventSink = (*Mirror)(nil)

// NewMirror creates a Mirror. cache and bus may be nil; without a bus the
// mirror must be registered as an executor event sink to see updates
// before the next rescan.
func NewMirror(
	programID domain.Address,
	accounts domain.AccountStore,
	mirror domain.MarketMirror,
	cache domain.MarketCache,
	bus domain.SignalBus,
	interval time.Duration,
	logger *slog.Logger,
) *Mirror {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Mirror{
		programID: programID,
		accounts:  accounts,
		mirror:    mirror,
		cache:     cache,
		bus:       bus,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "mirror")),
	}
}

// Run rescans once, then follows the event channel and the rescan ticker
// until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	if _, err := m.Rescan(ctx); err != nil {
		m.logger.WarnContext(ctx, "mirror: initial rescan failed", slog.String("error", err.Error()))
	}

	var events <-chan []byte
	if m.bus != nil {
		ch, err := m.bus.Subscribe(ctx, domain.ChannelEvents)
		if err != nil {
			return fmt.Errorf("mirror: subscribe: %w", err)
		}
		events = ch
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Rescan(ctx); err != nil {
				m.logger.WarnContext(ctx, "mirror: rescan failed", slog.String("error", err.Error()))
			}
		case payload, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				m.logger.WarnContext(ctx, "mirror: bad event payload", slog.String("error", err.Error()))
				continue
			}
			m.refreshLogged(ctx, ev.MarketID)
		}
	}
}

// PublishEvents refreshes every market touched by a committed batch.
func (m *Mirror) PublishEvents(ctx context.Context, events []domain.Event) error {
	seen := make(map[string]bool)
	var errs []error
	for _, ev := range events {
		if ev.MarketID == "" || seen[ev.MarketID] {
			continue
		}
		seen[ev.MarketID] = true
		if err := m.Refresh(ctx, ev.MarketID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) refreshLogged(ctx context.Context, marketID string) {
	if marketID == "" {
		return
	}
	if err := m.Refresh(ctx, marketID); err != nil {
		m.logger.WarnContext(ctx, "mirror: refresh failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// Refresh re-reads one market and upserts it.
func (m *Mirror) Refresh(ctx context.Context, marketID string) error {
	ms := MarketService{programID: m.programID, accounts: m.accounts}
	snap, err := ms.readMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("mirror: refresh %q: %w", marketID, err)
	}
	snap.UpdatedAt = m.now().UTC()
	if err := m.mirror.Upsert(ctx, snap); err != nil {
		return fmt.Errorf("mirror: upsert %q: %w", marketID, err)
	}
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, marketID); err != nil {
			m.logger.WarnContext(ctx, "mirror: cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Rescan upserts every market account owned by the program and returns the
// number of markets seen.
func (m *Mirror) Rescan(ctx context.Context) (int, error) {
	var total int
	for offset := 0; ; offset += rescanPageSize {
		accts, err := m.accounts.ListByOwner(ctx, m.programID, domain.ListOpts{Limit: rescanPageSize, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("mirror: list accounts: %w", err)
		}
		now := m.now().UTC()
		snaps := make([]domain.MarketSnapshot, 0, len(accts))
		for _, a := range accts {
			if !program.IsMarket(a.Data) {
				continue
			}
			snap, err := snapshotOf(m.programID, a)
			if err != nil {
				m.logger.WarnContext(ctx, "mirror: skipping undecodable market",
					slog.String("address", a.Address.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			snap.UpdatedAt = now
			snaps = append(snaps, snap)
		}
		if len(snaps) > 0 {
			if err := m.mirror.UpsertBatch(ctx, snaps); err != nil {
				return total, fmt.Errorf("mirror: upsert batch: %w", err)
			}
		}
		total += len(snaps)
		if len(accts) < rescanPageSize {
			break
		}
	}
	m.logger.DebugContext(ctx, "mirror: rescan complete", slog.Int("markets", total))
	return total, nil
}
