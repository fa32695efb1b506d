package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// MarketMirror implements domain.MarketMirror with a map. Like the SQL
// mirror it ignores snapshots older than the one it holds.
type MarketMirror struct {
	mu      sync.RWMutex
	markets map[string]domain.MarketSnapshot
}

var _ domain.MarketMirror = (*MarketMirror)(nil)

// NewMarketMirror returns an empty MarketMirror.
func NewMarketMirror() *MarketMirror {
	return &MarketMirror{markets: make(map[string]domain.MarketSnapshot)}
}

// Upsert stores snap unless a newer version is held.
func (m *MarketMirror) Upsert(_ context.Context, snap domain.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(snap)
	return nil
}

// UpsertBatch applies Upsert to each snapshot.
func (m *MarketMirror) UpsertBatch(_ context.Context, snaps []domain.MarketSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snaps {
		m.upsertLocked(s)
	}
	return nil
}

func (m *MarketMirror) upsertLocked(snap domain.MarketSnapshot) {
	if cur, ok := m.markets[snap.Market.MarketID]; ok && cur.Version > snap.Version {
		return
	}
	m.markets[snap.Market.MarketID] = snap
}

// Get returns the snapshot of marketID.
func (m *MarketMirror) Get(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.markets[marketID]
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("memory: market %s: %w", marketID, domain.ErrNotFound)
	}
	return snap, nil
}

// List returns one page of snapshots matching filter.
func (m *MarketMirror) List(_ context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.MarketSnapshot, error) {
	out := m.filtered(filter)
	sort.Slice(out, func(i, j int) bool { return out[i].Market.MarketID < out[j].Market.MarketID })
	return page(out, opts), nil
}

// Count returns how many snapshots match filter.
func (m *MarketMirror) Count(_ context.Context, filter domain.MarketFilter) (int64, error) {
	return int64(len(m.filtered(filter))), nil
}

func (m *MarketMirror) filtered(filter domain.MarketFilter) []domain.MarketSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.MarketSnapshot
	for _, s := range m.markets {
		if filter.Status != nil && s.Market.Status != *filter.Status {
			continue
		}
		if filter.Creator != nil && s.Market.Creator != *filter.Creator {
			continue
		}
		out = append(out, s)
	}
	return out
}
