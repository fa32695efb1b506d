package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// FeedStore implements domain.FeedStore with a map.
type FeedStore struct {
	mu    sync.RWMutex
	feeds map[domain.Address]domain.FeedObservation
}

var _ domain.FeedStore = (*FeedStore)(nil)

// NewFeedStore returns an empty FeedStore.
func NewFeedStore() *FeedStore {
	return &FeedStore{feeds: make(map[domain.Address]domain.FeedObservation)}
}

// ReadFeed returns the latest observation of feed.
func (s *FeedStore) ReadFeed(_ context.Context, feed domain.Address) (domain.FeedObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.feeds[feed]
	if !ok {
		return domain.FeedObservation{}, fmt.Errorf("memory: feed %s: %w", feed.Hex(), domain.ErrNotFound)
	}
	return obs, nil
}

// WriteFeed replaces the latest observation of obs.Feed.
func (s *FeedStore) WriteFeed(_ context.Context, obs domain.FeedObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[obs.Feed] = obs
	return nil
}
