package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/minimarket/internal/amm"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/ledger"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/token"
)

// MarketService serves read-side queries. Single markets are read from the
// account store, which is the source of truth; listings come from the
// mirror.
type MarketService struct {
	programID domain.Address
	accounts  domain.AccountStore
	mirror    domain.MarketMirror
	cache     domain.MarketCache
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	programID domain.Address,
	accounts domain.AccountStore,
	mirror domain.MarketMirror,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		programID: programID,
		accounts:  accounts,
		mirror:    mirror,
		cache:     cache,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// BetQuote previews a createBet without submitting it.
type BetQuote struct {
	MarketID   string `json:"market_id"`
	IsYes      bool   `json:"is_yes"`
	Amount     uint64 `json:"amount"`
	Fee        uint64 `json:"fee"`
	Net        uint64 `json:"net"`
	Shares     uint64 `json:"shares"`
	ReserveYes uint64 `json:"reserve_yes"`
	ReserveNo  uint64 `json:"reserve_no"`
	PriceYes   uint64 `json:"price_yes"`
	PriceNo    uint64 `json:"price_no"`
}

// ProgramID returns the program whose accounts the service reads.
func (s *MarketService) ProgramID() domain.Address { return s.programID }

// GetAccount returns the raw account at addr.
func (s *MarketService) GetAccount(ctx context.Context, addr domain.Address) (domain.Account, error) {
	a, err := s.accounts.Get(ctx, addr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("market_service: get account %s: %w", addr.Hex(), err)
	}
	return a, nil
}

// GetGlobal decodes the singleton Global record.
func (s *MarketService) GetGlobal(ctx context.Context) (domain.Global, error) {
	a, err := s.accounts.Get(ctx, pda.GlobalAddress(s.programID))
	if err != nil {
		return domain.Global{}, fmt.Errorf("market_service: get global: %w", err)
	}
	g, err := program.DecodeGlobal(a.Data)
	if err != nil {
		return domain.Global{}, fmt.Errorf("market_service: decode global: %w", err)
	}
	return g, nil
}

// GetMarket returns the current market state, from the cache when the
// cached copy exists.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	if s.cache != nil {
		if snap, err := s.cache.Get(ctx, marketID); err == nil {
			return snap, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	snap, err := s.readMarket(ctx, marketID)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, nil
}

func (s *MarketService) readMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	addr, err := pda.MarketAddress(s.programID, marketID)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: market address: %w", err)
	}
	a, err := s.accounts.Get(ctx, addr)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: get market %q: %w", marketID, err)
	}
	return snapshotOf(s.programID, a)
}

// ListMarkets pages through the mirror and returns the total match count.
func (s *MarketService) ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.MarketSnapshot, int64, error) {
	snaps, err := s.mirror.List(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: list markets: %w", err)
	}
	total, err := s.mirror.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return snaps, total, nil
}

// GetMint decodes a mint account.
func (s *MarketService) GetMint(ctx context.Context, mint domain.Address) (domain.Mint, error) {
	a, err := s.accounts.Get(ctx, mint)
	if err != nil {
		return domain.Mint{}, fmt.Errorf("market_service: get mint %s: %w", mint.Hex(), err)
	}
	if a.Owner != pda.TokenProgramID {
		return domain.Mint{}, fmt.Errorf("market_service: %s is not a mint: %w", mint.Hex(), domain.ErrAccountOwnedByWrongProgram)
	}
	return token.DecodeMint(a.Data)
}

// TokenBalance returns owner's balance of mint, zero when the associated
// account does not exist yet.
func (s *MarketService) TokenBalance(ctx context.Context, owner, mint domain.Address) (uint64, error) {
	a, err := s.accounts.Get(ctx, pda.TokenAccountAddress(owner, mint))
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("market_service: token balance: %w", err)
	}
	ta, err := token.DecodeAccount(a.Data)
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}

// Quote prices a bet of amount lamports against the current reserves using
// the same fee and curve arithmetic as createBet.
func (s *MarketService) Quote(ctx context.Context, marketID string, amount uint64, isYes bool) (BetQuote, error) {
	snap, err := s.readMarket(ctx, marketID)
	if err != nil {
		return BetQuote{}, err
	}
	m := snap.Market
	if m.Status != domain.MarketStatusActive {
		return BetQuote{}, fmt.Errorf("market_service: market %s is %s: %w", marketID, m.Status, domain.ErrMarketNotActive)
	}
	g, err := s.GetGlobal(ctx)
	if err != nil {
		return BetQuote{}, err
	}

	fee, net, err := ledger.SplitFee(amount, ledger.Bps(g.BettingFeeBps))
	if err != nil {
		return BetQuote{}, err
	}
	q, err := amm.QuoteSwap(m.TokenAAmount, m.TokenBAmount, net, isYes)
	if err != nil {
		return BetQuote{}, err
	}
	priceYes, priceNo, err := amm.Prices(q.ReserveYes, q.ReserveNo, g.Decimal)
	if err != nil {
		return BetQuote{}, err
	}
	return BetQuote{
		MarketID:   marketID,
		IsYes:      isYes,
		Amount:     amount,
		Fee:        fee,
		Net:        net,
		Shares:     q.AmountOut,
		ReserveYes: q.ReserveYes,
		ReserveNo:  q.ReserveNo,
		PriceYes:   priceYes,
		PriceNo:    priceNo,
	}, nil
}

// snapshotOf decodes a program-owned market account.
func snapshotOf(programID domain.Address, a domain.Account) (domain.MarketSnapshot, error) {
	if a.Owner != programID {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: %s: %w", a.Address.Hex(), domain.ErrAccountOwnedByWrongProgram)
	}
	m, err := program.DecodeMarket(a.Data)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: decode %s: %w", a.Address.Hex(), err)
	}
	return domain.MarketSnapshot{Address: a.Address, Version: a.Version, Market: m}, nil
}
