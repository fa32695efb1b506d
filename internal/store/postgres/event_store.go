package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Payloads are
// stored as JSONB.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.EventStore = (*EventStore)(nil)

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts events in one batch. Ids already stored are skipped so a
// sink retry is harmless.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	const query = `
		INSERT INTO events (id, kind, market_id, tx_id, at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(query, ev.ID, string(ev.Kind), ev.MarketID, ev.TxID, ev.At, []byte(ev.Payload))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, ev := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// List returns the newest events first. An empty marketID lists all.
func (s *EventStore) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, kind, market_id, tx_id, at, payload FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if marketID != "" {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, marketID)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY at DESC, id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return s.query(ctx, query, args...)
}

// ListBefore returns events older than before, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	return s.query(ctx,
		`SELECT id, kind, market_id, tx_id, at, payload FROM events WHERE at < $1 ORDER BY at, id`,
		before)
}

// DeleteBefore removes events older than before.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &kind, &ev.MarketID, &ev.TxID, &ev.At, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
