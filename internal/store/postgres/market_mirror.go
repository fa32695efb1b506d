package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// MarketMirror implements domain.MarketMirror using PostgreSQL. Rows are
// only replaced by snapshots taken at a newer account version.
type MarketMirror struct {
	pool *pgxpool.Pool
}

var _ domain.MarketMirror = (*MarketMirror)(nil)

// NewMarketMirror creates a new MarketMirror backed by the given connection pool.
func NewMarketMirror(pool *pgxpool.Pool) *MarketMirror {
	return &MarketMirror{pool: pool}
}

const upsertMarket = `
	INSERT INTO markets (market_id, address, version, status, creator, market, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (market_id) DO UPDATE SET
		address    = EXCLUDED.address,
		version    = EXCLUDED.version,
		status     = EXCLUDED.status,
		creator    = EXCLUDED.creator,
		market     = EXCLUDED.market,
		updated_at = EXCLUDED.updated_at
	WHERE markets.version < EXCLUDED.version`

func marketArgs(snap domain.MarketSnapshot) ([]any, error) {
	doc, err := json.Marshal(snap.Market)
	if err != nil {
		return nil, err
	}
	return []any{
		snap.Market.MarketID, snap.Address.Bytes(), int64(snap.Version),
		snap.Market.Status.String(), snap.Market.Creator.Bytes(), doc, snap.UpdatedAt,
	}, nil
}

// Upsert inserts or refreshes a single market snapshot.
func (s *MarketMirror) Upsert(ctx context.Context, snap domain.MarketSnapshot) error {
	args, err := marketArgs(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal market %s: %w", snap.Market.MarketID, err)
	}
	if _, err := s.pool.Exec(ctx, upsertMarket, args...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", snap.Market.MarketID, err)
	}
	return nil
}

// UpsertBatch inserts or refreshes multiple snapshots in a single batch.
func (s *MarketMirror) UpsertBatch(ctx context.Context, snaps []domain.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		args, err := marketArgs(snap)
		if err != nil {
			return fmt.Errorf("postgres: marshal market %s: %w", snap.Market.MarketID, err)
		}
		batch.Queue(upsertMarket, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

const marketCols = `address, version, market, updated_at`

func scanSnapshot(row pgx.Row) (domain.MarketSnapshot, error) {
	var (
		snap    domain.MarketSnapshot
		addr    []byte
		version int64
		doc     []byte
	)
	if err := row.Scan(&addr, &version, &doc, &snap.UpdatedAt); err != nil {
		return domain.MarketSnapshot{}, err
	}
	if err := json.Unmarshal(doc, &snap.Market); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("unmarshal market: %w", err)
	}
	snap.Address = common.BytesToAddress(addr)
	snap.Version = uint64(version)
	return snap, nil
}

// Get retrieves a snapshot by market id.
func (s *MarketMirror) Get(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE market_id = $1`, marketID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketSnapshot{}, fmt.Errorf("postgres: market %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: get market %s: %w", marketID, err)
	}
	return snap, nil
}

func whereFilter(filter domain.MarketFilter) (string, []any) {
	clause := ` WHERE 1=1`
	var args []any
	if filter.Status != nil {
		args = append(args, filter.Status.String())
		clause += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Creator != nil {
		args = append(args, filter.Creator.Bytes())
		clause += fmt.Sprintf(" AND creator = $%d", len(args))
	}
	return clause, args
}

// List returns snapshots ordered by market id.
func (s *MarketMirror) List(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.MarketSnapshot, error) {
	where, args := whereFilter(filter)
	query := `SELECT ` + marketCols + ` FROM markets` + where
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND updated_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND updated_at <= $%d", len(args))
	}
	query += " ORDER BY market_id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// Count returns the number of markets matching filter.
func (s *MarketMirror) Count(ctx context.Context, filter domain.MarketFilter) (int64, error) {
	where, args := whereFilter(filter)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}
