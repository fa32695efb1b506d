package domain

import (
	"context"
	"time"
)

// MarketCache provides fast decoded-market lookups by market id.
type MarketCache interface {
	Set(ctx context.Context, snap MarketSnapshot) error
	Get(ctx context.Context, marketID string) (MarketSnapshot, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Channel and stream names used on the SignalBus.
const (
	ChannelEvents       = "ch:events"
	ChannelMarketPrefix = "ch:market:"
	StreamEvents        = "stream:events"
)
