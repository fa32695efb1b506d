package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/amm"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/ledger"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Accounts: payer (signer, writable), global (writable).
func (p *Program) initialize(ic *vm.InvokeContext, data []byte) error {
	params, err := decodeInitialize(data)
	if err != nil {
		return err
	}
	accts, err := accounts(ic, 2)
	if err != nil {
		return err
	}
	payer, global := accts[0], accts[1]
	if err := signer(payer); err != nil {
		return err
	}
	if err := writable(global); err != nil {
		return err
	}
	if err := expect(global, pda.GlobalAddress(p.id)); err != nil {
		return err
	}
	if global.Initialized() {
		return fmt.Errorf("global: %w", domain.ErrAccountAlreadyInUse)
	}

	switch {
	case params.FeeAuthority == domain.ZeroAddress:
		return fmt.Errorf("fee authority unset: %w", domain.ErrInvalidParams)
	case params.Decimal > amm.MaxDecimal:
		return fmt.Errorf("decimal %d: %w", params.Decimal, domain.ErrInvalidParams)
	case !ledger.Bps(params.BettingFeeBps).Valid() || !ledger.Bps(params.FundFeeBps).Valid():
		return fmt.Errorf("fee rates %d/%d bps: %w", params.BettingFeeBps, params.FundFeeBps, domain.ErrInvalidParams)
	}

	g := domain.Global{
		Admin:            payer.Address(),
		FeeAuthority:     params.FeeAuthority,
		CreatorFeeAmount: params.CreatorFeeAmount,
		MarketCount:      params.MarketCount,
		Decimal:          params.Decimal,
		BettingFeeBps:    params.BettingFeeBps,
		FundFeeBps:       params.FundFeeBps,
	}
	if err := global.Assign(p.id, EncodeGlobal(g)); err != nil {
		return err
	}
	return ic.Emit(domain.EventGlobalInitialized, "", domain.GlobalInitializedEvent{
		Admin:            g.Admin,
		FeeAuthority:     g.FeeAuthority,
		CreatorFeeAmount: g.CreatorFeeAmount,
		MarketCount:      g.MarketCount,
		Decimal:          g.Decimal,
		BettingFeeBps:    g.BettingFeeBps,
		FundFeeBps:       g.FundFeeBps,
	})
}
