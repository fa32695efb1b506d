// Package notify announces market milestones to operator channels
// (Telegram, Discord). Only market creation, activation and resolution are
// reported.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Notification kinds accepted in the events filter.
const (
	KindMarketCreated   = "market_created"
	KindMarketActivated = "market_activated"
	KindMarketResolved  = "market_resolved"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type notification struct {
	kind, title, message string
}

// Notifier turns committed events into notifications and delivers them to
// every sender from a background worker, so a slow channel never delays
// the executor.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan notification
	logger  *slog.Logger
}

var _ vm.EventSink = (*Notifier)(nil)

// NewNotifier creates a Notifier. An empty events list allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan notification, 64),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// PublishEvents queues a notification for each reportable event.
func (n *Notifier) PublishEvents(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		note, ok, err := describe(ev)
		if err != nil {
			return fmt.Errorf("notify: %s: %w", ev.Kind, err)
		}
		if !ok || (len(n.events) > 0 && !n.events[note.kind]) {
			continue
		}
		select {
		case n.queue <- note:
		default:
			n.logger.WarnContext(ctx, "notify: queue full, dropping notification",
				slog.String("kind", note.kind),
			)
		}
	}
	return nil
}

// Run delivers queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case note := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := n.dispatch(sendCtx, note.title, note.message); err != nil {
				n.logger.WarnContext(ctx, "notify: delivery failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func describe(ev domain.Event) (notification, bool, error) {
	switch ev.Kind {
	case domain.EventMarketCreated:
		var p domain.MarketCreatedEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return notification{}, false, err
		}
		return notification{
			kind:  KindMarketCreated,
			title: "Market created: " + p.MarketID,
			message: fmt.Sprintf("Resolves YES if feed %s is %s %g at %s.",
				p.Feed.Hex(), rangeWord(p.Range), p.Value, time.Unix(p.Date, 0).UTC().Format(time.RFC3339)),
		}, true, nil

	case domain.EventMarketStatusUpdated:
		var p domain.MarketStatusUpdatedEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return notification{}, false, err
		}
		if p.To != domain.MarketStatusActive.String() {
			return notification{}, false, nil
		}
		return notification{
			kind:    KindMarketActivated,
			title:   "Market active: " + p.MarketID,
			message: "Liquidity threshold reached; betting is open.",
		}, true, nil

	case domain.EventOracleResUpdated:
		var p domain.OracleResUpdatedEvent
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return notification{}, false, err
		}
		outcome := "NO"
		if p.Result {
			outcome = "YES"
		}
		return notification{
			kind:    KindMarketResolved,
			title:   "Market resolved: " + p.MarketID,
			message: fmt.Sprintf("Outcome %s (oracle value %g).", outcome, p.OracleRes),
		}, true, nil
	}
	return notification{}, false, nil
}

func rangeWord(r domain.RangeMode) string {
	switch r {
	case domain.RangeGreaterThan:
		return "above"
	case domain.RangeLessThan:
		return "below"
	default:
		return "equal to"
	}
}
