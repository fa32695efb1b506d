// Package pda derives account addresses from seeds so that every record a
// program owns can be located and verified without an index.
package pda

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

var (
	GlobalSeed = []byte("global_seed")
	MarketSeed = []byte("market_seed")
	MintASeed  = []byte("mint_a_seed")
	MintBSeed  = []byte("mint_b_seed")

	derivationMarker = []byte("ProgramDerivedAddress")
)

// Well-known programs. Their ids are fixed for every deployment.
var (
	SystemProgramID          = ProgramID("system")
	TokenProgramID           = ProgramID("token")
	AssociatedTokenProgramID = ProgramID("associated-token")
	OracleProgramID          = ProgramID("oracle")
)

// ProgramID returns the id of the program registered under name.
func ProgramID(name string) domain.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("program:" + name))[12:])
}

// Derive hashes the seeds together with programID into an address. It only
// fails when there are too many seeds or a seed is longer than MaxSeedLen.
func Derive(programID domain.Address, seeds ...[]byte) (domain.Address, error) {
	if len(seeds) > MaxSeeds {
		return domain.ZeroAddress, fmt.Errorf("pda: %d seeds: %w", len(seeds), domain.ErrMaxSeedLengthExceeded)
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return domain.ZeroAddress, fmt.Errorf("pda: seed %d is %d bytes: %w", i, len(s), domain.ErrMaxSeedLengthExceeded)
		}
		// Length prefix keeps ("ab","c") and ("a","bc") apart.
		parts = append(parts, append([]byte{byte(len(s))}, s...))
	}
	parts = append(parts, programID.Bytes(), derivationMarker)
	return common.BytesToAddress(crypto.Keccak256(parts...)[12:]), nil
}

func mustDerive(programID domain.Address, seeds ...[]byte) domain.Address {
	addr, err := Derive(programID, seeds...)
	if err != nil {
		panic(err)
	}
	return addr
}

// GlobalAddress is the singleton Global record of programID.
func GlobalAddress(programID domain.Address) domain.Address {
	return mustDerive(programID, GlobalSeed)
}

// MarketAddress derives the record for marketID. The id must be non-empty
// and at most MaxSeedLen bytes.
func MarketAddress(programID domain.Address, marketID string) (domain.Address, error) {
	if marketID == "" {
		return domain.ZeroAddress, fmt.Errorf("pda: empty market id: %w", domain.ErrInvalidParams)
	}
	return Derive(programID, MarketSeed, []byte(marketID))
}

// MintAddress derives the YES (A) or NO (B) mint of a market.
func MintAddress(programID, market domain.Address, role domain.TokenRole) domain.Address {
	seed := MintASeed
	if role == domain.TokenRoleB {
		seed = MintBSeed
	}
	return mustDerive(programID, seed, market.Bytes())
}

// TokenAccountAddress derives the associated token account holding owner's
// balance of mint.
func TokenAccountAddress(owner, mint domain.Address) domain.Address {
	return mustDerive(AssociatedTokenProgramID, owner.Bytes(), TokenProgramID.Bytes(), mint.Bytes())
}

// MarketAccounts bundles every address a market touches.
type MarketAccounts struct {
	Market   domain.Address
	MintA    domain.Address
	MintB    domain.Address
	ReserveA domain.Address
	ReserveB domain.Address
}

// ForMarket derives the full address set for marketID.
func ForMarket(programID domain.Address, marketID string) (MarketAccounts, error) {
	market, err := MarketAddress(programID, marketID)
	if err != nil {
		return MarketAccounts{}, err
	}
	a := MintAddress(programID, market, domain.TokenRoleA)
	b := MintAddress(programID, market, domain.TokenRoleB)
	return MarketAccounts{
		Market:   market,
		MintA:    a,
		MintB:    b,
		ReserveA: TokenAccountAddress(market, a),
		ReserveB: TokenAccountAddress(market, b),
	}, nil
}
