package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// keyedMutex serialises work per account inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.Address]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.Address]*refMutex)}
}

func (k *keyedMutex) lock(addr domain.Address) func() {
	k.mu.Lock()
	m, ok := k.locks[addr]
	if !ok {
		m = &refMutex{}
		k.locks[addr] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, addr)
		}
		k.mu.Unlock()
	}
}

// sortedAddrs orders addresses so every executor acquires locks in the
// same order.
func sortedAddrs(addrs []domain.Address) []domain.Address {
	out := append([]domain.Address(nil), addrs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// lockAccounts takes the local lock and, when configured, the distributed
// lock for every address. The returned func releases all of them.
func (e *Executor) lockAccounts(ctx context.Context, addrs []domain.Address) (func(), error) {
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, addr := range sortedAddrs(addrs) {
		releases = append(releases, e.local.lock(addr))
		if e.dlock == nil {
			continue
		}
		unlock, err := e.acquireDistributed(ctx, addr)
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, unlock)
	}
	return release, nil
}

func (e *Executor) acquireDistributed(ctx context.Context, addr domain.Address) (func(), error) {
	key := "lock:account:" + addr.Hex()
	deadline := time.Now().Add(e.cfg.LockWait)
	backoff := 5 * time.Millisecond
	for {
		unlock, err := e.dlock.Acquire(ctx, key, e.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return nil, fmt.Errorf("vm: lock %s: %w", addr.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}
