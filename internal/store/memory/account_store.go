// Package memory keeps program state in process memory. It backs tests
// and single-process local deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// AccountStore implements domain.AccountStore with a map.
type AccountStore struct {
	mu        sync.RWMutex
	accounts  map[domain.Address]domain.Account
	processed map[string]time.Time
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore returns an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts:  make(map[domain.Address]domain.Account),
		processed: make(map[string]time.Time),
	}
}

// Get returns a copy of the account at addr.
func (s *AccountStore) Get(_ context.Context, addr domain.Address) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[addr]
	if !ok {
		return domain.Account{}, fmt.Errorf("memory: account %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return a.Clone(), nil
}

// GetMany returns copies of the accounts that exist among addrs.
func (s *AccountStore) GetMany(_ context.Context, addrs []domain.Address) (map[domain.Address]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.Address]domain.Account, len(addrs))
	for _, addr := range addrs {
		if a, ok := s.accounts[addr]; ok {
			out[addr] = a.Clone()
		}
	}
	return out, nil
}

// Commit validates every write before applying any of them.
func (s *AccountStore) Commit(_ context.Context, req domain.CommitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.processed[req.TxID]; done {
		return fmt.Errorf("memory: tx %s: %w", req.TxID, domain.ErrAlreadyProcessed)
	}
	for _, w := range req.Accounts {
		cur, exists := s.accounts[w.Address]
		switch {
		case w.Version == 0 && exists:
			return fmt.Errorf("memory: create %s: %w", w.Address.Hex(), domain.ErrConflict)
		case w.Version != 0 && (!exists || cur.Version != w.Version):
			return fmt.Errorf("memory: update %s at version %d: %w", w.Address.Hex(), w.Version, domain.ErrConflict)
		}
	}
	for _, w := range req.Accounts {
		a := w.Clone()
		a.Version = w.Version + 1
		s.accounts[w.Address] = a
	}
	if req.TxID != "" {
		s.processed[req.TxID] = req.At
	}
	return nil
}

// ListByOwner returns accounts owned by owner in address order.
func (s *AccountStore) ListByOwner(_ context.Context, owner domain.Address, opts domain.ListOpts) ([]domain.Account, error) {
	s.mu.RLock()
	var out []domain.Account
	for _, a := range s.accounts {
		if a.Owner == owner {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0 })
	return page(out, opts), nil
}

// PruneProcessed forgets transaction ids recorded before before.
func (s *AccountStore) PruneProcessed(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.processed {
		if at.Before(before) {
			delete(s.processed, id)
			n++
		}
	}
	return n, nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
