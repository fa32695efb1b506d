package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/amm"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/token"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: creator (signer), feeAuthority, market (writable), global,
// mintA (writable), mintB (writable), reserveA (writable),
// reserveB (writable).
func (p *Program) mintToken(ic *vm.InvokeContext, data []byte) error {
	if err := checkEmpty(IxMintToken, data); err != nil {
		return err
	}
	accts, err := accounts(ic, 8)
	if err != nil {
		return err
	}
	creator, feeAuthority, market, global := accts[0], accts[1], accts[2], accts[3]
	mintA, mintB, reserveA, reserveB := accts[4], accts[5], accts[6], accts[7]
	if err := signer(creator); err != nil {
		return err
	}
	if err := writable(market, mintA, mintB, reserveA, reserveB); err != nil {
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
	if creator.Address() != m.Creator {
		return fmt.Errorf("got %s: %w", creator.Address().Hex(), domain.ErrInvalidCreator)
	}
	switch m.Status {
	case domain.MarketStatusCreated:
	case domain.MarketStatusPrepare, domain.MarketStatusActive, domain.MarketStatusResolved:
		return fmt.Errorf("market %s is %s: %w", m.MarketID, m.Status, domain.ErrInvalidMarket)
	default:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrInvalidMarket)
	}

	if err := expect(mintA, m.TokenA); err != nil {
		return err
	}
	if err := expect(mintB, m.TokenB); err != nil {
		return err
	}
	if err := token.InitAccount(reserveA, mintA, market.Address()); err != nil {
		return err
	}
	if err := token.InitAccount(reserveB, mintB, market.Address()); err != nil {
		return err
	}

	auth, err := marketAuthority(ic, m.MarketID)
	if err != nil {
		return err
	}
	if err := token.MintTo(mintA, reserveA, auth, m.TokenAAmount); err != nil {
		return err
	}
	if err := token.MintTo(mintB, reserveB, auth, m.TokenBAmount); err != nil {
		return err
	}

	if m.TokenPriceA, m.TokenPriceB, err = amm.Prices(m.TokenAAmount, m.TokenBAmount, g.Decimal); err != nil {
		return err
	}
	if err := advance(ic, &m, domain.MarketStatusPrepare); err != nil {
		return err
	}
	return market.SetData(EncodeMarket(m))
}

// reserveAddresses derives both reserve token accounts of a market.
func reserveAddresses(market, mintA, mintB domain.Address) (domain.Address, domain.Address) {
	return pda.TokenAccountAddress(market, mintA), pda.TokenAccountAddress(market, mintB)
}
