package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// EventStore implements domain.EventStore in memory, oldest first.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
	ids    map[string]bool
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore returns an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{ids: make(map[string]bool)}
}

// Append stores events, ignoring ids already present.
func (s *EventStore) Append(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if s.ids[ev.ID] {
			continue
		}
		s.ids[ev.ID] = true
		s.events = append(s.events, ev)
	}
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].At.Before(s.events[j].At) })
	return nil
}

// List returns the newest events first. An empty marketID lists all.
func (s *EventStore) List(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	var out []domain.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if marketID != "" && ev.MarketID != marketID {
			continue
		}
		if opts.Since != nil && ev.At.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.At.After(*opts.Until) {
			continue
		}
		out = append(out, ev)
	}
	s.mu.RUnlock()
	return page(out, opts), nil
}

// ListBefore returns events committed before before, oldest first.
func (s *EventStore) ListBefore(_ context.Context, before time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, ev := range s.events {
		if !ev.At.Before(before) {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

// DeleteBefore removes events committed before before.
func (s *EventStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var n int64
	for _, ev := range s.events {
		if ev.At.Before(before) {
			delete(s.ids, ev.ID)
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}
