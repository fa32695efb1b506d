package program

import (
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// The builders below assemble instructions with their accounts in the order
// the handlers read them. They derive every program address locally.

func ro(addr domain.Address) vm.AccountMeta { return vm.AccountMeta{Address: addr} }
func rw(addr domain.Address) vm.AccountMeta { return vm.AccountMeta{Address: addr, Writable: true} }
func signerRW(addr domain.Address) vm.AccountMeta {
	return vm.AccountMeta{Address: addr, Signer: true, Writable: true}
}

// InitializeIx creates the Global record with payer as admin.
func InitializeIx(programID, payer domain.Address, params InitializeParams) vm.Instruction {
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxInitialize,
		Accounts: []vm.AccountMeta{
			signerRW(payer),
			rw(pda.GlobalAddress(programID)),
		},
		Data: params.encode(),
	}
}

// InitMarketIx proposes a market settled by feed.
func InitMarketIx(programID, creator, feeAuthority, feed domain.Address, params MarketParams) (vm.Instruction, error) {
	ma, err := pda.ForMarket(programID, params.MarketID)
	if err != nil {
		return vm.Instruction{}, err
	}
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxInitMarket,
		Accounts: []vm.AccountMeta{
			signerRW(creator),
			rw(feeAuthority),
			rw(ma.Market),
			ro(pda.GlobalAddress(programID)),
			ro(feed),
			rw(ma.MintA),
			rw(ma.MintB),
		},
		Data: params.encode(),
	}, nil
}

// MintTokenIx seeds a created market's reserves.
func MintTokenIx(programID, creator, feeAuthority domain.Address, marketID string) (vm.Instruction, error) {
	ma, err := pda.ForMarket(programID, marketID)
	if err != nil {
		return vm.Instruction{}, err
	}
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxMintToken,
		Accounts: []vm.AccountMeta{
			signerRW(creator),
			ro(feeAuthority),
			rw(ma.Market),
			ro(pda.GlobalAddress(programID)),
			rw(ma.MintA),
			rw(ma.MintB),
			rw(ma.ReserveA),
			rw(ma.ReserveB),
		},
		Data: emptyParams(IxMintToken),
	}, nil
}

// AddLiquidityIx deposits amount lamports into a preparing market.
func AddLiquidityIx(programID, depositor, feeAuthority domain.Address, marketID string, amount uint64) (vm.Instruction, error) {
	market, err := pda.MarketAddress(programID, marketID)
	if err != nil {
		return vm.Instruction{}, err
	}
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxAddLiquidity,
		Accounts: []vm.AccountMeta{
			signerRW(depositor),
			rw(feeAuthority),
			rw(market),
			ro(pda.GlobalAddress(programID)),
		},
		Data: LiquidityParams{Amount: amount}.encode(),
	}, nil
}

// CreateBetIx buys YES or NO shares for amount lamports.
func CreateBetIx(programID, bettor, creator, feeAuthority domain.Address, params BettingParams) (vm.Instruction, error) {
	ma, err := pda.ForMarket(programID, params.MarketID)
	if err != nil {
		return vm.Instruction{}, err
	}
	chosen := ma.MintA
	if !params.IsYes {
		chosen = ma.MintB
	}
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxCreateBet,
		Accounts: []vm.AccountMeta{
			signerRW(bettor),
			ro(creator),
			rw(feeAuthority),
			rw(ma.Market),
			ro(pda.GlobalAddress(programID)),
			rw(ma.MintA),
			rw(ma.MintB),
			rw(ma.ReserveA),
			rw(ma.ReserveB),
			rw(pda.TokenAccountAddress(bettor, chosen)),
		},
		Data: params.encode(),
	}, nil
}

// GetResIx resolves a market from its feed. Only the admin may send it.
func GetResIx(programID, admin, feed domain.Address, marketID string) (vm.Instruction, error) {
	market, err := pda.MarketAddress(programID, marketID)
	if err != nil {
		return vm.Instruction{}, err
	}
	return vm.Instruction{
		ProgramID: programID,
		Name:      IxGetRes,
		Accounts: []vm.AccountMeta{
			signerRW(admin),
			rw(market),
			ro(pda.GlobalAddress(programID)),
			ro(feed),
		},
		Data: emptyParams(IxGetRes),
	}, nil
}
