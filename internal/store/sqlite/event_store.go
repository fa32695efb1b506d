package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// EventStore implements domain.EventStore.
type EventStore struct {
	db *sql.DB
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore creates an EventStore over db.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Append inserts events, skipping ids already stored.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append events: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, kind, market_id, tx_id, at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			ev.ID, string(ev.Kind), ev.MarketID, ev.TxID, ev.At.UnixNano(), string(ev.Payload),
		); err != nil {
			return fmt.Errorf("sqlite: append event %s: %w", ev.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit events: %w", err)
	}
	return nil
}

// List returns the newest events first. An empty marketID lists all.
func (s *EventStore) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, kind, market_id, tx_id, at, payload FROM events WHERE 1=1`
	var args []any
	if marketID != "" {
		query += ` AND market_id = ?`
		args = append(args, marketID)
	}
	if opts.Since != nil {
		query += ` AND at >= ?`
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		query += ` AND at <= ?`
		args = append(args, opts.Until.UnixNano())
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)
	return s.query(ctx, query, args...)
}

// ListBefore returns events older than before, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	return s.query(ctx,
		`SELECT id, kind, market_id, tx_id, at, payload FROM events WHERE at < ? ORDER BY at, id`,
		before.UnixNano())
}

// DeleteBefore removes events committed before before.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			kind    string
			at      int64
			payload string
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.MarketID, &ev.TxID, &at, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.At = time.Unix(0, at).UTC()
		ev.Payload = []byte(payload)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list events rows: %w", err)
	}
	return out, nil
}
