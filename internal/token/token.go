// Package token implements fungible mints and balances on top of the vm
// account model. Mints and token accounts are owned by pda.TokenProgramID;
// only the functions here change their data.
package token

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/codec"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

var (
	mintDisc    = codec.AccountDiscriminator("Mint")
	accountDisc = codec.AccountDiscriminator("TokenAccount")
)

// Metadata describes a mint for wallets and explorers.
type Metadata struct {
	Name   string
	Symbol string
	URI    string
}

const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200
)

func (m Metadata) validate() error {
	if len(m.Name) > maxNameLen || len(m.Symbol) > maxSymbolLen || len(m.URI) > maxURILen {
		return fmt.Errorf("token: metadata too long: %w", domain.ErrInvalidParams)
	}
	return nil
}

// EncodeMint lays out a mint account.
func EncodeMint(m domain.Mint) []byte {
	e := codec.NewEncoder(mintDisc)
	e.Address(1, m.Authority)
	e.Uint(2, m.Supply)
	e.Uint(3, uint64(m.Decimals))
	e.String(4, m.Name)
	e.String(5, m.Symbol)
	e.String(6, m.URI)
	return e.Bytes()
}

// DecodeMint is the inverse of EncodeMint.
func DecodeMint(data []byte) (domain.Mint, error) {
	d, err := codec.NewDecoder(mintDisc, data)
	if err != nil {
		return domain.Mint{}, fmt.Errorf("token: mint: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	m := domain.Mint{
		Authority: d.Address(1),
		Supply:    d.Uint(2),
		Decimals:  d.Uint8(3),
		Name:      d.String(4),
		Symbol:    d.String(5),
		URI:       d.String(6),
	}
	if err := d.Err(); err != nil {
		return domain.Mint{}, fmt.Errorf("token: mint: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	return m, nil
}

// EncodeAccount lays out a token account.
func EncodeAccount(a domain.TokenAccount) []byte {
	e := codec.NewEncoder(accountDisc)
	e.Address(1, a.Mint)
	e.Address(2, a.Owner)
	e.Uint(3, a.Amount)
	return e.Bytes()
}

// DecodeAccount is the inverse of EncodeAccount.
func DecodeAccount(data []byte) (domain.TokenAccount, error) {
	d, err := codec.NewDecoder(accountDisc, data)
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("token: account: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	a := domain.TokenAccount{Mint: d.Address(1), Owner: d.Address(2), Amount: d.Uint(3)}
	if err := d.Err(); err != nil {
		return domain.TokenAccount{}, fmt.Errorf("token: account: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	return a, nil
}

// LoadMint decodes a mint account, checking it belongs to the token program.
func LoadMint(info *vm.AccountInfo) (domain.Mint, error) {
	if !info.Initialized() {
		return domain.Mint{}, fmt.Errorf("token: mint %s: %w", info.Address().Hex(), domain.ErrAccountNotInitialized)
	}
	if info.Owner() != pda.TokenProgramID {
		return domain.Mint{}, fmt.Errorf("token: mint %s: %w", info.Address().Hex(), domain.ErrAccountOwnedByWrongProgram)
	}
	return DecodeMint(info.Data())
}

// LoadAccount decodes a token account, checking it belongs to the token
// program.
func LoadAccount(info *vm.AccountInfo) (domain.TokenAccount, error) {
	if !info.Initialized() {
		return domain.TokenAccount{}, fmt.Errorf("token: account %s: %w", info.Address().Hex(), domain.ErrAccountNotInitialized)
	}
	if info.Owner() != pda.TokenProgramID {
		return domain.TokenAccount{}, fmt.Errorf("token: account %s: %w", info.Address().Hex(), domain.ErrAccountOwnedByWrongProgram)
	}
	return DecodeAccount(info.Data())
}

// InitMint creates a mint controlled by authority.
func InitMint(mint *vm.AccountInfo, authority domain.Address, decimals uint8, meta Metadata) error {
	if mint.Initialized() {
		return fmt.Errorf("token: mint %s: %w", mint.Address().Hex(), domain.ErrAccountAlreadyInUse)
	}
	if err := meta.validate(); err != nil {
		return err
	}
	return mint.Assign(pda.TokenProgramID, EncodeMint(domain.Mint{
		Authority: authority,
		Decimals:  decimals,
		Name:      meta.Name,
		Symbol:    meta.Symbol,
		URI:       meta.URI,
	}))
}

// InitAccount creates owner's associated account for mint. It succeeds
// without changes when the account already exists for the same pair.
func InitAccount(acct, mint *vm.AccountInfo, owner domain.Address) error {
	if acct.Address() != pda.TokenAccountAddress(owner, mint.Address()) {
		return fmt.Errorf("token: %s is not the associated account of %s: %w", acct.Address().Hex(), owner.Hex(), domain.ErrConstraintSeeds)
	}
	if _, err := LoadMint(mint); err != nil {
		return err
	}
	if acct.Initialized() {
		ta, err := LoadAccount(acct)
		if err != nil {
			return err
		}
		if ta.Mint != mint.Address() {
			return fmt.Errorf("token: account %s: %w", acct.Address().Hex(), domain.ErrTokenMintMismatch)
		}
		if ta.Owner != owner {
			return fmt.Errorf("token: account %s: %w", acct.Address().Hex(), domain.ErrTokenOwnerMismatch)
		}
		return nil
	}
	return acct.Assign(pda.TokenProgramID, EncodeAccount(domain.TokenAccount{Mint: mint.Address(), Owner: owner}))
}

// MintTo creates amount new tokens in dest. auth must be the mint authority.
func MintTo(mint, dest *vm.AccountInfo, auth vm.Authority, amount uint64) error {
	m, err := LoadMint(mint)
	if err != nil {
		return err
	}
	if !auth.Valid() || auth.Address() != m.Authority {
		return fmt.Errorf("token: mint authority of %s: %w", mint.Address().Hex(), domain.ErrTokenOwnerMismatch)
	}
	ta, err := LoadAccount(dest)
	if err != nil {
		return err
	}
	if ta.Mint != mint.Address() {
		return fmt.Errorf("token: account %s: %w", dest.Address().Hex(), domain.ErrTokenMintMismatch)
	}
	if m.Supply+amount < m.Supply || ta.Amount+amount < ta.Amount {
		return fmt.Errorf("token: mint %d: %w", amount, domain.ErrArithmetic)
	}
	m.Supply += amount
	ta.Amount += amount
	if err := mint.SetData(EncodeMint(m)); err != nil {
		return err
	}
	return dest.SetData(EncodeAccount(ta))
}

// Transfer moves amount from src to dst. auth must own src.
func Transfer(src, dst *vm.AccountInfo, auth vm.Authority, amount uint64) error {
	from, err := LoadAccount(src)
	if err != nil {
		return err
	}
	to, err := LoadAccount(dst)
	if err != nil {
		return err
	}
	if !auth.Valid() || auth.Address() != from.Owner {
		return fmt.Errorf("token: owner of %s: %w", src.Address().Hex(), domain.ErrTokenOwnerMismatch)
	}
	if from.Mint != to.Mint {
		return fmt.Errorf("token: %s -> %s: %w", src.Address().Hex(), dst.Address().Hex(), domain.ErrTokenMintMismatch)
	}
	if src.Address() == dst.Address() {
		return nil
	}
	if from.Amount < amount {
		return fmt.Errorf("token: %s holds %d, needs %d: %w", src.Address().Hex(), from.Amount, amount, domain.ErrTokenInsufficientFunds)
	}
	if to.Amount+amount < to.Amount {
		return fmt.Errorf("token: transfer %d: %w", amount, domain.ErrArithmetic)
	}
	from.Amount -= amount
	to.Amount += amount
	if err := src.SetData(EncodeAccount(from)); err != nil {
		return err
	}
	return dst.SetData(EncodeAccount(to))
}

// Balance returns the amount held in a token account.
func Balance(info *vm.AccountInfo) (uint64, error) {
	ta, err := LoadAccount(info)
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}
