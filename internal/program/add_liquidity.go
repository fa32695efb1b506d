package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/ledger"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: depositor (signer, writable), feeAuthority (writable),
// market (writable), global.
func (p *Program) addLiquidity(ic *vm.InvokeContext, data []byte) error {
	params, err := decodeLiquidity(data)
	if err != nil {
		return err
	}
	accts, err := accounts(ic, 4)
	if err != nil {
		return err
	}
	depositor, feeAuthority, market, global := accts[0], accts[1], accts[2], accts[3]
	if err := signer(depositor); err != nil {
		return err
	}
	if err := writable(depositor, feeAuthority, market); err != nil {
		return err
	}

	g, err := p.loadGlobal(global)
	if err != nil {
		return err
	}
	if err := checkFeeAuthority(g, feeAuthority); err != nil {
		return err
	}
	m, err := p.loadMarket(market)
	if err != nil {
		return err
	}
	switch m.Status {
	case domain.MarketStatusPrepare:
	case domain.MarketStatusCreated:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrNotPreparing)
	case domain.MarketStatusActive:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrMarketNotActive)
	case domain.MarketStatusResolved:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrInvalidMarket)
	default:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrInvalidMarket)
	}

	if err := ledger.CheckDeposit(params.Amount); err != nil {
		return err
	}
	fee, net, err := ledger.SplitFee(params.Amount, ledger.Bps(g.FundFeeBps))
	if err != nil {
		return err
	}
	if m.TotalReserve, err = ledger.Add(m.TotalReserve, net); err != nil {
		return err
	}

	if err := ic.Transfer(depositor, feeAuthority, fee); err != nil {
		return err
	}
	if err := ic.Transfer(depositor, market, net); err != nil {
		return err
	}

	if err := ic.Emit(domain.EventLiquidityAdded, m.MarketID, domain.LiquidityAddedEvent{
		MarketID:     m.MarketID,
		Depositor:    depositor.Address(),
		Amount:       params.Amount,
		Fee:          fee,
		TotalReserve: m.TotalReserve,
	}); err != nil {
		return err
	}
	if ledger.Activates(m.TotalReserve, g.MarketCount) {
		if err := advance(ic, &m, domain.MarketStatusActive); err != nil {
			return err
		}
	}
	return market.SetData(EncodeMarket(m))
}
