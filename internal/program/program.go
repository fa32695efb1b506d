// Package program is the prediction-market program: six instructions that
// move a Market through Created, Prepare, Active and Resolved, price bets
// with the constant-product curve and settle against an oracle feed.
//
// Handlers validate every account and precondition before they mutate
// anything. The vm applies a handler's effects only when it returns nil.
package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/oracle"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// DefaultProgramName seeds the program id when none is configured.
const DefaultProgramName = "minimarket"

// Program implements vm.Program.
type Program struct {
	id    domain.Address
	feeds oracle.FeedReader
	gate  oracle.Gate
}

var _ vm.Program = (*Program)(nil)

// New returns the program deployed at id, reading resolution data from
// feeds.
func New(id domain.Address, feeds oracle.FeedReader, gate oracle.Gate) *Program {
	return &Program{id: id, feeds: feeds, gate: gate}
}

// ID returns the address the program is deployed at.
func (p *Program) ID() domain.Address { return p.id }

// Process dispatches ix to its handler.
func (p *Program) Process(ic *vm.InvokeContext, ix vm.Instruction) error {
	switch ix.Name {
	case IxInitialize:
		return p.initialize(ic, ix.Data)
	case IxInitMarket:
		return p.initMarket(ic, ix.Data)
	case IxMintToken:
		return p.mintToken(ic, ix.Data)
	case IxAddLiquidity:
		return p.addLiquidity(ic, ix.Data)
	case IxCreateBet:
		return p.createBet(ic, ix.Data)
	case IxGetRes:
		return p.getRes(ic, ix.Data)
	default:
		return fmt.Errorf("instruction %q: %w", ix.Name, domain.ErrInstructionFallbackNotFound)
	}
}

func accounts(ic *vm.InvokeContext, n int) ([]*vm.AccountInfo, error) {
	accts := ic.Accounts()
	if len(accts) < n {
		return nil, fmt.Errorf("got %d accounts, want %d: %w", len(accts), n, domain.ErrNotEnoughAccountKeys)
	}
	return accts[:n], nil
}

func signer(a *vm.AccountInfo) error {
	if !a.IsSigner() {
		return fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountNotSigner)
	}
	return nil
}

func writable(accts ...*vm.AccountInfo) error {
	for _, a := range accts {
		if !a.IsWritable() {
			return fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountNotWritable)
		}
	}
	return nil
}

func expect(a *vm.AccountInfo, want domain.Address) error {
	if a.Address() != want {
		return fmt.Errorf("got %s, want %s: %w", a.Address().Hex(), want.Hex(), domain.ErrConstraintSeeds)
	}
	return nil
}

func (p *Program) owned(a *vm.AccountInfo) error {
	if !a.Initialized() {
		return fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountNotInitialized)
	}
	if a.Owner() != p.id {
		return fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountOwnedByWrongProgram)
	}
	return nil
}

func (p *Program) loadGlobal(a *vm.AccountInfo) (domain.Global, error) {
	if err := expect(a, pda.GlobalAddress(p.id)); err != nil {
		return domain.Global{}, err
	}
	if err := p.owned(a); err != nil {
		return domain.Global{}, err
	}
	return DecodeGlobal(a.Data())
}

// loadMarket decodes a Market and checks it sits at the address its id
// derives to.
func (p *Program) loadMarket(a *vm.AccountInfo) (domain.Market, error) {
	if err := p.owned(a); err != nil {
		return domain.Market{}, err
	}
	m, err := DecodeMarket(a.Data())
	if err != nil {
		return domain.Market{}, err
	}
	want, err := pda.MarketAddress(p.id, m.MarketID)
	if err != nil {
		return domain.Market{}, err
	}
	if err := expect(a, want); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func checkFeeAuthority(g domain.Global, a *vm.AccountInfo) error {
	if a.Address() != g.FeeAuthority {
		return fmt.Errorf("got %s: %w", a.Address().Hex(), domain.ErrInvalidFeeAuthority)
	}
	return nil
}

// advance moves m one state forward and emits the status event.
func advance(ic *vm.InvokeContext, m *domain.Market, next domain.MarketStatus) error {
	if !m.Status.CanTransitionTo(next) {
		return fmt.Errorf("market %s: %s -> %s: %w", m.MarketID, m.Status, next, domain.ErrInvalidMarket)
	}
	from := m.Status
	m.Status = next
	return ic.Emit(domain.EventMarketStatusUpdated, m.MarketID, domain.MarketStatusUpdatedEvent{
		MarketID: m.MarketID,
		From:     from.String(),
		To:       next.String(),
	})
}

// marketAuthority is the market address acting as mint and reserve owner.
func marketAuthority(ic *vm.InvokeContext, marketID string) (vm.Authority, error) {
	return ic.DerivedAuthority(pda.MarketSeed, []byte(marketID))
}
