package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountCols = `address, owner, lamports::text, data, version`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		addr, owner, data []byte
		lamports          string
		version           int64
	)
	if err := row.Scan(&addr, &owner, &lamports, &data, &version); err != nil {
		return domain.Account{}, err
	}
	n, err := strconv.ParseUint(lamports, 10, 64)
	if err != nil {
		return domain.Account{}, fmt.Errorf("lamports %q: %w", lamports, err)
	}
	return domain.Account{
		Address:  common.BytesToAddress(addr),
		Owner:    common.BytesToAddress(owner),
		Lamports: n,
		Data:     data,
		Version:  uint64(version),
	}, nil
}

// Get retrieves an account by address.
func (s *AccountStore) Get(ctx context.Context, addr domain.Address) (domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE address = $1`, addr.Bytes())
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, fmt.Errorf("postgres: account %s: %w", addr.Hex(), domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", addr.Hex(), err)
	}
	return a, nil
}

// GetMany retrieves the stored subset of addrs.
func (s *AccountStore) GetMany(ctx context.Context, addrs []domain.Address) (map[domain.Address]domain.Account, error) {
	out := make(map[domain.Address]domain.Account, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}
	keys := make([][]byte, len(addrs))
	for i, a := range addrs {
		keys[i] = a.Bytes()
	}
	rows, err := s.pool.Query(ctx, `SELECT `+accountCols+` FROM accounts WHERE address = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("postgres: get accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out[a.Address] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get accounts rows: %w", err)
	}
	return out, nil
}

// Commit records the transaction id and applies every write in a single
// database transaction. An update only lands when the row is still at the
// version the writer read.
func (s *AccountStore) Commit(ctx context.Context, req domain.CommitRequest) error {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if req.TxID != "" {
			tag, err := tx.Exec(ctx,
				`INSERT INTO processed_txs (tx_id, committed_at) VALUES ($1, $2) ON CONFLICT (tx_id) DO NOTHING`,
				req.TxID, at)
			if err != nil {
				return fmt.Errorf("postgres: record tx %s: %w", req.TxID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("postgres: tx %s: %w", req.TxID, domain.ErrAlreadyProcessed)
			}
		}

		for _, w := range req.Accounts {
			lamports := strconv.FormatUint(w.Lamports, 10)
			var (
				sql  string
				args []any
			)
			if w.Version == 0 {
				sql = `
					INSERT INTO accounts (address, owner, lamports, data, version, updated_at)
					VALUES ($1, $2, $3::numeric, $4, 1, $5)
					ON CONFLICT (address) DO NOTHING`
				args = []any{w.Address.Bytes(), w.Owner.Bytes(), lamports, w.Data, at}
			} else {
				sql = `
					UPDATE accounts
					SET owner = $2, lamports = $3::numeric, data = $4,
					    version = version + 1, updated_at = $5
					WHERE address = $1 AND version = $6`
				args = []any{w.Address.Bytes(), w.Owner.Bytes(), lamports, w.Data, at, int64(w.Version)}
			}
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("postgres: write account %s: %w", w.Address.Hex(), err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("postgres: write %s at version %d: %w", w.Address.Hex(), w.Version, domain.ErrConflict)
			}
		}
		return nil
	})
}

// ListByOwner returns the accounts owned by owner in address order.
func (s *AccountStore) ListByOwner(ctx context.Context, owner domain.Address, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT ` + accountCols + ` FROM accounts WHERE owner = $1 ORDER BY address`
	args := []any{owner.Bytes()}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts of %s: %w", owner.Hex(), err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return out, nil
}

// PruneProcessed forgets transaction ids committed before the cutoff.
func (s *AccountStore) PruneProcessed(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_txs WHERE committed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune processed txs: %w", err)
	}
	return tag.RowsAffected(), nil
}
