package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// EventLog persists committed events and fans them out on the signal bus.
// Either dependency may be nil.
type EventLog struct {
	store  domain.EventStore
	bus    domain.SignalBus
	logger *slog.Logger
}

var _ vm.EventSink = (*EventLog)(nil)

// NewEventLog creates an EventLog.
func NewEventLog(store domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *EventLog {
	return &EventLog{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "event_log")),
	}
}

// PublishEvents stores the batch, then publishes each event to the global
// channel, its market channel and the durable stream.
func (l *EventLog) PublishEvents(ctx context.Context, events []domain.Event) error {
	if l.store != nil {
		if err := l.store.Append(ctx, events); err != nil {
			return fmt.Errorf("event_log: append: %w", err)
		}
	}
	if l.bus == nil {
		return nil
	}

	var errs []error
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.bus.Publish(ctx, domain.ChannelEvents, payload); err != nil {
			errs = append(errs, err)
		}
		if ev.MarketID != "" {
			if err := l.bus.Publish(ctx, domain.ChannelMarketPrefix+ev.MarketID, payload); err != nil {
				errs = append(errs, err)
			}
		}
		if err := l.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event_log: publish: %w", err)
	}
	return nil
}

// List returns stored events, newest first.
func (l *EventLog) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	if l.store == nil {
		return nil, nil
	}
	events, err := l.store.List(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("event_log: list: %w", err)
	}
	return events, nil
}
