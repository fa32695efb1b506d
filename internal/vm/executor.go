// Package vm executes signed transactions against the account store. Each
// transaction runs one instruction of one program and is applied
// completely or not at all.
package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

// Program is on-chain logic the executor can invoke.
type Program interface {
	ID() domain.Address
	Process(ic *InvokeContext, ix Instruction) error
}

// EventSink receives the events of committed transactions.
type EventSink interface {
	PublishEvents(ctx context.Context, events []domain.Event) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Config bounds transaction lifetimes and lock waits.
type Config struct {
	MaxTxLifetime time.Duration
	LockTTL       time.Duration
	LockWait      time.Duration
	FaucetEnabled bool
}

// DefaultConfig is used for zero fields.
func DefaultConfig() Config {
	return Config{
		MaxTxLifetime: 2 * time.Minute,
		LockTTL:       10 * time.Second,
		LockWait:      2 * time.Second,
	}
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxID        string         `json:"tx_id"`
	Program     domain.Address `json:"program"`
	Instruction string         `json:"instruction"`
	Events      []domain.Event `json:"events"`
	CommittedAt time.Time      `json:"committed_at"`
}

// Executor runs transactions.
type Executor struct {
	store    domain.AccountStore
	programs map[domain.Address]Program
	local    *keyedMutex
	dlock    domain.LockManager
	sinks    []EventSink
	clock    Clock
	cfg      Config
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLockManager adds a distributed lock so several nodes can share one
// account store.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Executor) { e.dlock = lm }
}

// WithEventSink registers a sink for committed events.
func WithEventSink(s EventSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, s) }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor hosting programs.
func NewExecutor(store domain.AccountStore, cfg Config, programs []Program, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxTxLifetime <= 0 {
		cfg.MaxTxLifetime = def.MaxTxLifetime
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	e := &Executor{
		store:    store,
		programs: make(map[domain.Address]Program, len(programs)),
		local:    newKeyedMutex(),
		clock:    ClockFunc(time.Now),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, p := range programs {
		e.programs[p.ID()] = p
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With(slog.String("component", "vm"))
	return e
}

// Execute verifies, runs and commits tx. On any error nothing is written.
func (e *Executor) Execute(ctx context.Context, tx *Transaction) (Receipt, error) {
	now := e.clock.Now()
	if err := tx.CheckExpiry(now, e.cfg.MaxTxLifetime); err != nil {
		return Receipt{}, err
	}
	if err := tx.Verify(); err != nil {
		return Receipt{}, err
	}
	ix := tx.Instruction
	prog, ok := e.programs[ix.ProgramID]
	if !ok {
		return Receipt{}, fmt.Errorf("vm: program %s: %w", ix.ProgramID.Hex(), domain.ErrNotFound)
	}

	var addrs, writable []domain.Address
	seen := make(map[domain.Address]bool, len(ix.Accounts))
	for _, m := range ix.Accounts {
		if m.Signer && m.Address != tx.Signer {
			return Receipt{}, fmt.Errorf("vm: %s marked as signer: %w", m.Address.Hex(), domain.ErrAccountNotSigner)
		}
		if !seen[m.Address] {
			seen[m.Address] = true
			addrs = append(addrs, m.Address)
		}
		if m.Writable {
			writable = append(writable, m.Address)
		}
	}

	release, err := e.lockAccounts(ctx, dedupe(writable))
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	loaded, err := e.store.GetMany(ctx, addrs)
	if err != nil {
		return Receipt{}, fmt.Errorf("vm: load accounts: %w", err)
	}

	txID := tx.ID()
	ic := NewInvokeContext(ctx, prog.ID(), now, tx.Signer, ix.Accounts, loaded)
	if err := prog.Process(ic, ix); err != nil {
		e.logger.Debug("vm: instruction failed",
			slog.String("tx", txID),
			slog.String("instruction", ix.Name),
			slog.String("error", err.Error()),
		)
		return Receipt{TxID: txID}, err
	}
	writes, err := ic.Writes()
	if err != nil {
		e.logger.Error("vm: invocation rejected",
			slog.String("tx", txID),
			slog.String("instruction", ix.Name),
			slog.String("error", err.Error()),
		)
		return Receipt{TxID: txID}, err
	}

	if err := e.store.Commit(ctx, domain.CommitRequest{TxID: txID, Accounts: writes, At: now}); err != nil {
		return Receipt{TxID: txID}, fmt.Errorf("vm: commit: %w", err)
	}

	events := ic.Events()
	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].TxID = txID
		events[i].At = now
	}
	e.publish(ctx, events)

	e.logger.Info("vm: transaction committed",
		slog.String("tx", txID),
		slog.String("instruction", ix.Name),
		slog.String("signer", tx.Signer.Hex()),
		slog.Int("writes", len(writes)),
		slog.Int("events", len(events)),
	)
	return Receipt{
		TxID:        txID,
		Program:     prog.ID(),
		Instruction: ix.Name,
		Events:      events,
		CommittedAt: now,
	}, nil
}

func (e *Executor) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	for _, s := range e.sinks {
		if err := s.PublishEvents(ctx, events); err != nil {
			e.logger.Warn("vm: event sink failed",
				slog.String("tx", events[0].TxID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Airdrop credits lamports to addr out of thin air. Only for local
// deployments where FaucetEnabled is set.
func (e *Executor) Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (string, error) {
	if !e.cfg.FaucetEnabled {
		return "", fmt.Errorf("vm: faucet disabled: %w", domain.ErrUnauthorized)
	}
	if lamports == 0 {
		return "", fmt.Errorf("vm: zero airdrop: %w", domain.ErrInvalidFundAmount)
	}
	release, err := e.lockAccounts(ctx, []domain.Address{addr})
	if err != nil {
		return "", err
	}
	defer release()

	acct, err := e.store.Get(ctx, addr)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		acct = domain.Account{Address: addr, Owner: pda.SystemProgramID}
	case err != nil:
		return "", fmt.Errorf("vm: airdrop load: %w", err)
	}
	if acct.Lamports+lamports < acct.Lamports {
		return "", fmt.Errorf("vm: airdrop: %w", domain.ErrArithmetic)
	}
	acct.Lamports += lamports

	txID := "airdrop:" + uuid.NewString()
	if err := e.store.Commit(ctx, domain.CommitRequest{TxID: txID, Accounts: []domain.Account{acct}, At: e.clock.Now()}); err != nil {
		return "", fmt.Errorf("vm: airdrop commit: %w", err)
	}
	e.logger.Info("vm: airdrop", slog.String("to", addr.Hex()), slog.Uint64("lamports", lamports))
	return txID, nil
}

// PruneProcessed forgets transaction ids that can no longer be replayed.
func (e *Executor) PruneProcessed(ctx context.Context) (int64, error) {
	return e.store.PruneProcessed(ctx, e.clock.Now().Add(-2*e.cfg.MaxTxLifetime))
}

// RunPruner calls PruneProcessed every interval until ctx is done.
func (e *Executor) RunPruner(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := e.PruneProcessed(ctx)
			if err != nil {
				e.logger.Warn("vm: prune failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				e.logger.Debug("vm: pruned processed transactions", slog.Int64("count", n))
			}
		}
	}
}

func dedupe(addrs []domain.Address) []domain.Address {
	seen := make(map[domain.Address]bool, len(addrs))
	out := addrs[:0:0]
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
