package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/token"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: creator (signer, writable), feeAuthority (writable),
// market (writable), global, feed, mintA (writable), mintB (writable).
func (p *Program) initMarket(ic *vm.InvokeContext, data []byte) error {
	params, err := decodeMarketParams(data)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	accts, err := accounts(ic, 7)
	if err != nil {
		return err
	}
	creator, feeAuthority, market, global, feed, mintA, mintB := accts[0], accts[1], accts[2], accts[3], accts[4], accts[5], accts[6]
	if err := signer(creator); err != nil {
		return err
	}
	if err := writable(creator, feeAuthority, market, mintA, mintB); err != nil {
		return err
	}

	g, err := p.loadGlobal(global)
	if err != nil {
		return err
	}
	if err := checkFeeAuthority(g, feeAuthority); err != nil {
		return err
	}

	marketAddr, err := pda.MarketAddress(p.id, params.MarketID)
	if err != nil {
		return err
	}
	if err := expect(market, marketAddr); err != nil {
		return err
	}
	if market.Initialized() {
		return fmt.Errorf("market %s: %w", params.MarketID, domain.ErrAccountAlreadyInUse)
	}
	if err := expect(mintA, pda.MintAddress(p.id, marketAddr, domain.TokenRoleA)); err != nil {
		return err
	}
	if err := expect(mintB, pda.MintAddress(p.id, marketAddr, domain.TokenRoleB)); err != nil {
		return err
	}

	if err := ic.Transfer(creator, feeAuthority, g.CreatorFeeAmount); err != nil {
		return err
	}

	metaA := token.Metadata{Name: orDefault(params.NameA, "Yes"), Symbol: orDefault(params.SymbolA, "YES"), URI: params.URLA}
	metaB := token.Metadata{Name: orDefault(params.NameB, "No"), Symbol: orDefault(params.SymbolB, "NO"), URI: params.URLB}
	if err := token.InitMint(mintA, marketAddr, g.Decimal, metaA); err != nil {
		return err
	}
	if err := token.InitMint(mintB, marketAddr, g.Decimal, metaB); err != nil {
		return err
	}

	// Reserves are recorded now and minted by mintToken.
	m := domain.Market{
		MarketID:     params.MarketID,
		Value:        params.Value,
		Range:        params.Range,
		Creator:      creator.Address(),
		Feed:         feed.Address(),
		TokenA:       mintA.Address(),
		TokenB:       mintB.Address(),
		Status:       domain.MarketStatusCreated,
		TokenAAmount: params.TokenAmount,
		TokenBAmount: params.TokenAmount,
		TokenPriceA:  params.TokenPrice,
		TokenPriceB:  params.TokenPrice,
		Date:         params.Date,
	}
	if err := market.Assign(p.id, EncodeMarket(m)); err != nil {
		return err
	}
	return ic.Emit(domain.EventMarketCreated, m.MarketID, domain.MarketCreatedEvent{
		MarketID: m.MarketID,
		Market:   marketAddr,
		Creator:  m.Creator,
		Feed:     m.Feed,
		TokenA:   m.TokenA,
		TokenB:   m.TokenB,
		Value:    m.Value,
		Range:    m.Range,
		Date:     m.Date,
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
