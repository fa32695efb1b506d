package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// TxExecutor runs signed transactions. *vm.Executor implements it.
type TxExecutor interface {
	Execute(ctx context.Context, tx *vm.Transaction) (vm.Receipt, error)
	Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (string, error)
}

// TxLimit caps submissions per signer. A zero Limit disables it.
type TxLimit struct {
	Limit  int
	Window time.Duration
}

// TxService is the write path: every state change enters through Submit.
type TxService struct {
	exec    TxExecutor
	limiter domain.RateLimiter
	limit   TxLimit
	logger  *slog.Logger
}

// NewTxService creates a TxService. limiter may be nil.
func NewTxService(exec TxExecutor, limiter domain.RateLimiter, limit TxLimit, logger *slog.Logger) *TxService {
	return &TxService{
		exec:    exec,
		limiter: limiter,
		limit:   limit,
		logger:  logger.With(slog.String("component", "tx_service")),
	}
}

// Submit executes tx. Program errors are returned unchanged so callers can
// recover the typed error with domain.AsProgramError.
func (s *TxService) Submit(ctx context.Context, tx *vm.Transaction) (vm.Receipt, error) {
	if tx == nil {
		return vm.Receipt{}, fmt.Errorf("tx_service: nil transaction: %w", domain.ErrInstructionDidNotDeserialize)
	}
	if s.limiter != nil && s.limit.Limit > 0 {
		ok, err := s.limiter.Allow(ctx, "tx:"+tx.Signer.Hex(), s.limit.Limit, s.limit.Window)
		if err != nil {
			s.logger.WarnContext(ctx, "tx_service: rate limiter unavailable",
				slog.String("error", err.Error()),
			)
		} else if !ok {
			return vm.Receipt{}, fmt.Errorf("tx_service: signer %s: %w", tx.Signer.Hex(), domain.ErrRateLimited)
		}
	}

	receipt, err := s.exec.Execute(ctx, tx)
	if err != nil {
		return receipt, err
	}
	s.logger.DebugContext(ctx, "tx_service: submitted",
		slog.String("tx", receipt.TxID),
		slog.String("instruction", receipt.Instruction),
	)
	return receipt, nil
}

// Faucet credits lamports on deployments that enable it.
func (s *TxService) Faucet(ctx context.Context, addr domain.Address, lamports uint64) (string, error) {
	id, err := s.exec.Airdrop(ctx, addr, lamports)
	if err != nil {
		return "", fmt.Errorf("tx_service: faucet: %w", err)
	}
	return id, nil
}
