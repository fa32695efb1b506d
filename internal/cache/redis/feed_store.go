package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// FeedStore implements domain.FeedStore. Each feed is a hash at
// "feed:{address}" with fields owner, value, ci and ts (Unix nanoseconds).
type FeedStore struct {
	c *Client
}

var _ domain.FeedStore = (*FeedStore)(nil)

// NewFeedStore creates a FeedStore backed by c.
func NewFeedStore(c *Client) *FeedStore {
	return &FeedStore{c: c}
}

func (fs *FeedStore) key(feed domain.Address) string { return fs.c.Key("feed", feed.Hex()) }

// WriteFeed replaces the latest observation of obs.Feed.
func (fs *FeedStore) WriteFeed(ctx context.Context, obs domain.FeedObservation) error {
	fields := map[string]any{
		"owner": obs.Owner.Hex(),
		"value": strconv.FormatFloat(obs.Value, 'g', -1, 64),
		"ci":    strconv.FormatFloat(obs.ConfidenceInterval, 'g', -1, 64),
		"ts":    strconv.FormatInt(obs.LastUpdate.UnixNano(), 10),
	}
	if err := fs.c.rdb.HSet(ctx, fs.key(obs.Feed), fields).Err(); err != nil {
		return fmt.Errorf("redis: write feed %s: %w", obs.Feed.Hex(), err)
	}
	return nil
}

// ReadFeed returns domain.ErrNotFound for a feed never written.
func (fs *FeedStore) ReadFeed(ctx context.Context, feed domain.Address) (domain.FeedObservation, error) {
	vals, err := fs.c.rdb.HGetAll(ctx, fs.key(feed)).Result()
	if err != nil {
		return domain.FeedObservation{}, fmt.Errorf("redis: read feed %s: %w", feed.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.FeedObservation{}, fmt.Errorf("redis: feed %s: %w", feed.Hex(), domain.ErrNotFound)
	}
	return parseFeed(feed, vals)
}

func parseFeed(feed domain.Address, vals map[string]string) (domain.FeedObservation, error) {
	obs := domain.FeedObservation{Feed: feed}
	owner, ok := vals["owner"]
	if !ok || !common.IsHexAddress(owner) {
		return domain.FeedObservation{}, fmt.Errorf("redis: feed %s: bad owner %q", feed.Hex(), owner)
	}
	obs.Owner = common.HexToAddress(owner)

	var err error
	if obs.Value, err = strconv.ParseFloat(vals["value"], 64); err != nil {
		return domain.FeedObservation{}, fmt.Errorf("redis: feed %s value: %w", feed.Hex(), err)
	}
	if obs.ConfidenceInterval, err = strconv.ParseFloat(vals["ci"], 64); err != nil {
		return domain.FeedObservation{}, fmt.Errorf("redis: feed %s ci: %w", feed.Hex(), err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.FeedObservation{}, fmt.Errorf("redis: feed %s ts: %w", feed.Hex(), err)
	}
	obs.LastUpdate = time.Unix(0, ts).UTC()
	return obs, nil
}
