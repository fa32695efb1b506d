package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// AccountStore implements domain.AccountStore. Lamports are kept as
// decimal text because SQLite integers are signed.
type AccountStore struct {
	db *sql.DB
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an AccountStore over db.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountCols = `address, owner, lamports, data, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
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

// Get returns the account at addr.
func (s *AccountStore) Get(ctx context.Context, addr domain.Address) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE address = ?`, addr.Bytes())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("sqlite: account %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("sqlite: get account %s: %w", addr.Hex(), err)
	}
	return a, nil
}

// GetMany returns the accounts that exist among addrs.
func (s *AccountStore) GetMany(ctx context.Context, addrs []domain.Address) (map[domain.Address]domain.Account, error) {
	out := make(map[domain.Address]domain.Account, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}
	args := make([]any, len(addrs))
	for i, a := range addrs {
		args[i] = a.Bytes()
	}
	query := `SELECT ` + accountCols + ` FROM accounts WHERE address IN (?` + strings.Repeat(",?", len(addrs)-1) + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan account: %w", err)
		}
		out[a.Address] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get accounts rows: %w", err)
	}
	return out, nil
}

// Commit applies every write in one database transaction. Updates are
// conditioned on the expected version.
func (s *AccountStore) Commit(ctx context.Context, req domain.CommitRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	if req.TxID != "" {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO processed_txs (tx_id, committed_at) VALUES (?, ?) ON CONFLICT(tx_id) DO NOTHING`,
			req.TxID, at.UnixNano())
		if err != nil {
			return fmt.Errorf("sqlite: record tx %s: %w", req.TxID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("sqlite: tx %s: %w", req.TxID, domain.ErrAlreadyProcessed)
		}
	}

	for _, w := range req.Accounts {
		var res sql.Result
		lamports := strconv.FormatUint(w.Lamports, 10)
		if w.Version == 0 {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO accounts (address, owner, lamports, data, version, updated_at)
				VALUES (?, ?, ?, ?, 1, ?)
				ON CONFLICT(address) DO NOTHING`,
				w.Address.Bytes(), w.Owner.Bytes(), lamports, w.Data, at.UnixNano())
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE accounts
				SET owner = ?, lamports = ?, data = ?, version = version + 1, updated_at = ?
				WHERE address = ? AND version = ?`,
				w.Owner.Bytes(), lamports, w.Data, at.UnixNano(), w.Address.Bytes(), int64(w.Version))
		}
		if err != nil {
			return fmt.Errorf("sqlite: write account %s: %w", w.Address.Hex(), err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("sqlite: write %s at version %d: %w", w.Address.Hex(), w.Version, domain.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// ListByOwner returns accounts owned by owner in address order.
func (s *AccountStore) ListByOwner(ctx context.Context, owner domain.Address, opts domain.ListOpts) ([]domain.Account, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE owner = ? ORDER BY address LIMIT ? OFFSET ?`,
		owner.Bytes(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list accounts of %s: %w", owner.Hex(), err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list accounts rows: %w", err)
	}
	return out, nil
}

// PruneProcessed forgets transaction ids recorded before before.
func (s *AccountStore) PruneProcessed(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_txs WHERE committed_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune processed txs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
