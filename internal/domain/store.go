package domain

import (
	"context"
	"time"
)

// ListOpts controls pagination and time-range filtering on list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CommitRequest is the complete write set of one transaction. Accounts with
// Version zero are created; the rest must still be at the given Version.
type CommitRequest struct {
	TxID     string
	Accounts []Account
	At       time.Time
}

// AccountStore is the source of truth for all program state.
type AccountStore interface {
	Get(ctx context.Context, addr Address) (Account, error)
	GetMany(ctx context.Context, addrs []Address) (map[Address]Account, error)
	// Commit applies every account write and records TxID atomically. It
	// fails with ErrConflict when any version check fails and with
	// ErrAlreadyProcessed when TxID was committed before.
	Commit(ctx context.Context, req CommitRequest) error
	ListByOwner(ctx context.Context, owner Address, opts ListOpts) ([]Account, error)
	PruneProcessed(ctx context.Context, before time.Time) (int64, error)
}

// MarketFilter narrows a mirror listing.
type MarketFilter struct {
	Status  *MarketStatus
	Creator *Address
}

// MarketMirror is the read-side copy of market accounts used for listing.
// It never feeds back into program state.
type MarketMirror interface {
	Upsert(ctx context.Context, snap MarketSnapshot) error
	UpsertBatch(ctx context.Context, snaps []MarketSnapshot) error
	Get(ctx context.Context, marketID string) (MarketSnapshot, error)
	List(ctx context.Context, filter MarketFilter, opts ListOpts) ([]MarketSnapshot, error)
	Count(ctx context.Context, filter MarketFilter) (int64, error)
}

// EventStore persists committed program events.
type EventStore interface {
	Append(ctx context.Context, events []Event) error
	List(ctx context.Context, marketID string, opts ListOpts) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FeedStore holds the latest observation per oracle feed.
type FeedStore interface {
	ReadFeed(ctx context.Context, feed Address) (FeedObservation, error)
	WriteFeed(ctx context.Context, obs FeedObservation) error
}
