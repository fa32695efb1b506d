package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/amm"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/ledger"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/token"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: bettor (signer, writable), creator, feeAuthority (writable),
// market (writable), global, mintA (writable), mintB (writable),
// reserveA (writable), reserveB (writable), bettorToken (writable).
// bettorToken is the bettor's associated account for the chosen side.
func (p *Program) createBet(ic *vm.InvokeContext, data []byte) error {
	params, err := decodeBetting(data)
	if err != nil {
		return err
	}
	accts, err := accounts(ic, 10)
	if err != nil {
		return err
	}
	bettor, creator, feeAuthority, market, global := accts[0], accts[1], accts[2], accts[3], accts[4]
	mintA, mintB, reserveA, reserveB, bettorToken := accts[5], accts[6], accts[7], accts[8], accts[9]
	if err := signer(bettor); err != nil {
		return err
	}
	if err := writable(bettor, feeAuthority, market, mintA, mintB, reserveA, reserveB, bettorToken); err != nil {
		return err
	}

	marketAddr, err := pda.MarketAddress(p.id, params.MarketID)
	if err != nil {
		return err
	}
	if err := expect(market, marketAddr); err != nil {
		return err
	}
	g, err := p.loadGlobal(global)
	if err != nil {
		return err
	}
	m, err := p.loadMarket(market)
	if err != nil {
		return err
	}
	if creator.Address() != m.Creator {
		return fmt.Errorf("got %s: %w", creator.Address().Hex(), domain.ErrInvalidCreator)
	}
	if err := checkFeeAuthority(g, feeAuthority); err != nil {
		return err
	}
	switch m.Status {
	case domain.MarketStatusActive:
	case domain.MarketStatusCreated, domain.MarketStatusPrepare, domain.MarketStatusResolved:
		return fmt.Errorf("market %s is %s: %w", m.MarketID, m.Status, domain.ErrMarketNotActive)
	default:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrMarketNotActive)
	}
	if params.Amount == 0 {
		return fmt.Errorf("zero bet: %w", domain.ErrInvalidFundAmount)
	}

	if err := expect(mintA, m.TokenA); err != nil {
		return err
	}
	if err := expect(mintB, m.TokenB); err != nil {
		return err
	}
	wantA, wantB := reserveAddresses(marketAddr, m.TokenA, m.TokenB)
	if err := expect(reserveA, wantA); err != nil {
		return err
	}
	if err := expect(reserveB, wantB); err != nil {
		return err
	}
	if err := checkReserve(reserveA, m.TokenAAmount); err != nil {
		return err
	}
	if err := checkReserve(reserveB, m.TokenBAmount); err != nil {
		return err
	}

	fee, net, err := ledger.SplitFee(params.Amount, ledger.Bps(g.BettingFeeBps))
	if err != nil {
		return err
	}
	q, err := amm.QuoteSwap(m.TokenAAmount, m.TokenBAmount, net, params.IsYes)
	if err != nil {
		return err
	}
	if !amm.Holds(m.TokenAAmount, m.TokenBAmount, q.ReserveYes, q.ReserveNo) {
		return fmt.Errorf("market %s: invariant decreased: %w", m.MarketID, domain.ErrArithmetic)
	}

	if err := ic.Transfer(bettor, feeAuthority, fee); err != nil {
		return err
	}
	if err := ic.Transfer(bettor, market, net); err != nil {
		return err
	}

	chosenMint, chosenReserve, otherMint, otherReserve := mintA, reserveA, mintB, reserveB
	if !params.IsYes {
		chosenMint, chosenReserve, otherMint, otherReserve = mintB, reserveB, mintA, reserveA
	}
	auth, err := marketAuthority(ic, m.MarketID)
	if err != nil {
		return err
	}
	if err := token.InitAccount(bettorToken, chosenMint, bettor.Address()); err != nil {
		return err
	}
	if err := token.Transfer(chosenReserve, bettorToken, auth, q.AmountOut); err != nil {
		return err
	}
	if err := token.MintTo(otherMint, otherReserve, auth, net); err != nil {
		return err
	}

	m.TokenAAmount, m.TokenBAmount = q.ReserveYes, q.ReserveNo
	if params.IsYes {
		m.YesAmount, err = ledger.Add(m.YesAmount, net)
	} else {
		m.NoAmount, err = ledger.Add(m.NoAmount, net)
	}
	if err != nil {
		return err
	}
	if m.TokenPriceA, m.TokenPriceB, err = amm.Prices(m.TokenAAmount, m.TokenBAmount, g.Decimal); err != nil {
		return err
	}
	if err := market.SetData(EncodeMarket(m)); err != nil {
		return err
	}
	return ic.Emit(domain.EventBetting, m.MarketID, domain.BettingEvent{
		MarketID:    m.MarketID,
		Bettor:      bettor.Address(),
		IsYes:       params.IsYes,
		Amount:      params.Amount,
		Fee:         fee,
		Shares:      q.AmountOut,
		TokenAPrice: m.TokenPriceA,
		TokenBPrice: m.TokenPriceB,
	})
}

// checkReserve fails closed when a reserve account disagrees with the
// amount the market records.
func checkReserve(reserve *vm.AccountInfo, want uint64) error {
	got, err := token.Balance(reserve)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("reserve %s holds %d, market records %d: %w", reserve.Address().Hex(), got, want, domain.ErrArithmetic)
	}
	return nil
}
