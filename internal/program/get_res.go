package program

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: admin (signer), market (writable), global, feed.
func (p *Program) getRes(ic *vm.InvokeContext, data []byte) error {
	if err := checkEmpty(IxGetRes, data); err != nil {
		return err
	}
	accts, err := accounts(ic, 4)
	if err != nil {
		return err
	}
	admin, market, global, feed := accts[0], accts[1], accts[2], accts[3]

	g, err := p.loadGlobal(global)
	if err != nil {
		return err
	}
	if admin.Address() != g.Admin {
		return fmt.Errorf("got %s: %w", admin.Address().Hex(), domain.ErrInvalidAdmin)
	}
	if err := signer(admin); err != nil {
		return err
	}
	if err := writable(market); err != nil {
		return err
	}
	m, err := p.loadMarket(market)
	if err != nil {
		return err
	}
	switch m.Status {
	case domain.MarketStatusActive:
	case domain.MarketStatusCreated, domain.MarketStatusPrepare, domain.MarketStatusResolved:
		return fmt.Errorf("market %s is %s: %w", m.MarketID, m.Status, domain.ErrMarketNotActive)
	default:
		return fmt.Errorf("market %s: %w", m.MarketID, domain.ErrMarketNotActive)
	}
	now := ic.Now()
	if !m.Eligible(now) {
		return fmt.Errorf("market %s resolves at %d, now %d: %w", m.MarketID, m.Date, now.Unix(), domain.ErrResolutionNotReady)
	}

	if feed.Address() != m.Feed {
		return fmt.Errorf("feed %s, market reads %s: %w", feed.Address().Hex(), m.Feed.Hex(), domain.ErrInvalidSwitchboardAccount)
	}
	obs, err := p.feeds.ReadFeed(ic.Context(), m.Feed)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("feed %s: %w", m.Feed.Hex(), domain.ErrInvalidSwitchboardAccount)
	}
	if err != nil {
		return fmt.Errorf("read feed %s: %w", m.Feed.Hex(), err)
	}
	result, err := p.gate.Resolve(obs, m.Feed, now, m.Value, m.Range)
	if err != nil {
		return err
	}

	m.Result = result
	if err := ic.Emit(domain.EventOracleResUpdated, m.MarketID, domain.OracleResUpdatedEvent{
		MarketID:  m.MarketID,
		OracleRes: obs.Value,
		Result:    result,
	}); err != nil {
		return err
	}
	if err := advance(ic, &m, domain.MarketStatusResolved); err != nil {
		return err
	}
	return market.SetData(EncodeMarket(m))
}
