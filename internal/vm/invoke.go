package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

var (
	ErrLamportsNotConserved = errors.New("vm: lamports not conserved")
	ErrIllegalDebit         = errors.New("vm: debit from an account the program does not control")
	ErrIllegalDataChange    = errors.New("vm: data change on an account the program does not own")
)

// AccountInfo is an account loaded for one invocation. Changes stay local
// until the executor commits them.
type AccountInfo struct {
	meta AccountMeta
	orig domain.Account
	cur  domain.Account
}

// Accessors for the current, uncommitted view of the account.
func (a *AccountInfo) Address() domain.Address { return a.cur.Address }
func (a *AccountInfo) Owner() domain.Address   { return a.cur.Owner }
func (a *AccountInfo) Lamports() uint64        { return a.cur.Lamports }
func (a *AccountInfo) Data() []byte            { return a.cur.Data }
func (a *AccountInfo) IsSigner() bool          { return a.meta.Signer }
func (a *AccountInfo) IsWritable() bool        { return a.meta.Writable }

// Initialized reports whether the account holds program data.
func (a *AccountInfo) Initialized() bool { return len(a.cur.Data) > 0 }

// Assign hands the account to owner with data.
func (a *AccountInfo) Assign(owner domain.Address, data []byte) error {
	if !a.meta.Writable {
		return fmt.Errorf("assign %s: %w", a.Address().Hex(), domain.ErrAccountNotWritable)
	}
	a.cur.Owner = owner
	a.cur.Data = append([]byte(nil), data...)
	return nil
}

// SetData replaces the account data.
func (a *AccountInfo) SetData(data []byte) error {
	return a.Assign(a.cur.Owner, data)
}

func (a *AccountInfo) changed() bool {
	return !a.orig.Equal(a.cur)
}

// Authority proves the running program may act for an address, either
// because it signed the transaction or because it is derived from the
// program's own seeds.
type Authority struct {
	addr domain.Address
}

// Address returns the signer the authority stands for.
func (a Authority) Address() domain.Address { return a.addr }

// Valid is false for the zero Authority.
func (a Authority) Valid() bool { return a.addr != domain.ZeroAddress }

// InvokeContext is everything a program sees while it runs.
type InvokeContext struct {
	ctx       context.Context
	programID domain.Address
	now       time.Time
	signer    domain.Address
	accounts  []*AccountInfo
	unique    []*AccountInfo
	events    []domain.Event
}

// NewInvokeContext builds the view for one instruction. loaded holds the
// stored accounts; addresses missing from it start empty and owned by the
// system program.
func NewInvokeContext(ctx context.Context, programID domain.Address, now time.Time, signer domain.Address, metas []AccountMeta, loaded map[domain.Address]domain.Account) *InvokeContext {
	ic := &InvokeContext{ctx: ctx, programID: programID, now: now, signer: signer}
	byAddr := make(map[domain.Address]*AccountInfo, len(metas))
	for _, m := range metas {
		if info, ok := byAddr[m.Address]; ok {
			info.meta.Signer = info.meta.Signer || m.Signer
			info.meta.Writable = info.meta.Writable || m.Writable
			ic.accounts = append(ic.accounts, info)
			continue
		}
		acct, ok := loaded[m.Address]
		if !ok {
			acct = domain.Account{Address: m.Address, Owner: pda.SystemProgramID}
		}
		info := &AccountInfo{meta: m, orig: acct.Clone(), cur: acct.Clone()}
		byAddr[m.Address] = info
		ic.accounts = append(ic.accounts, info)
		ic.unique = append(ic.unique, info)
	}
	return ic
}

// Accessors for the invocation environment.
func (ic *InvokeContext) Context() context.Context  { return ic.ctx }
func (ic *InvokeContext) ProgramID() domain.Address { return ic.programID }
func (ic *InvokeContext) Now() time.Time            { return ic.now }
func (ic *InvokeContext) Signer() domain.Address    { return ic.signer }

// Accounts returns the instruction's accounts in the order they were listed.
func (ic *InvokeContext) Accounts() []*AccountInfo { return ic.accounts }

// Events returns what the program emitted so far.
func (ic *InvokeContext) Events() []domain.Event { return ic.events }

// Emit buffers an event; it is published only if the transaction commits.
func (ic *InvokeContext) Emit(kind domain.EventKind, marketID string, payload any) error {
	ev, err := domain.NewEvent(kind, marketID, payload)
	if err != nil {
		return fmt.Errorf("vm: encode %s event: %w", kind, err)
	}
	ic.events = append(ic.events, ev)
	return nil
}

// SignerAuthority returns the authority of an account that signed.
func (ic *InvokeContext) SignerAuthority(a *AccountInfo) (Authority, error) {
	if !a.IsSigner() || a.Address() != ic.signer {
		return Authority{}, fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountNotSigner)
	}
	return Authority{addr: a.Address()}, nil
}

// DerivedAuthority returns the authority of the address derived from the
// running program's id and seeds.
func (ic *InvokeContext) DerivedAuthority(seeds ...[]byte) (Authority, error) {
	addr, err := pda.Derive(ic.programID, seeds...)
	if err != nil {
		return Authority{}, err
	}
	return Authority{addr: addr}, nil
}

// Transfer moves lamports. from must be a signing wallet or an account the
// running program owns.
func (ic *InvokeContext) Transfer(from, to *AccountInfo, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	if !from.IsWritable() || !to.IsWritable() {
		return fmt.Errorf("transfer %s -> %s: %w", from.Address().Hex(), to.Address().Hex(), domain.ErrAccountNotWritable)
	}
	if !ic.mayDebit(from) {
		return fmt.Errorf("transfer from %s: %w", from.Address().Hex(), domain.ErrAccountNotSigner)
	}
	if from.cur.Lamports < lamports {
		return fmt.Errorf("transfer %d from %s holding %d: %w", lamports, from.Address().Hex(), from.cur.Lamports, domain.ErrInsufficientFunds)
	}
	if to.cur.Lamports+lamports < to.cur.Lamports {
		return fmt.Errorf("transfer to %s: %w", to.Address().Hex(), domain.ErrArithmetic)
	}
	from.cur.Lamports -= lamports
	to.cur.Lamports += lamports
	return nil
}

func (ic *InvokeContext) mayDebit(a *AccountInfo) bool {
	if a.orig.Owner == ic.programID {
		return true
	}
	return a.orig.Owner == pda.SystemProgramID && len(a.orig.Data) == 0 && a.IsSigner() && a.Address() == ic.signer
}

func (ic *InvokeContext) mayRewrite(a *AccountInfo) bool {
	switch a.orig.Owner {
	case ic.programID, pda.TokenProgramID:
		return true
	case pda.SystemProgramID:
		// A fresh account, or one that only holds lamports, may be claimed.
		return len(a.orig.Data) == 0
	}
	return false
}

// Writes checks the invocation's effects and returns the accounts to
// commit. It fails when lamports were created or destroyed, when an account
// not listed as writable changed, or when the program touched data or
// balances it does not control.
func (ic *InvokeContext) Writes() ([]domain.Account, error) {
	before, after := new(uint256.Int), new(uint256.Int)
	var writes []domain.Account
	for _, a := range ic.unique {
		before.AddUint64(before, a.orig.Lamports)
		after.AddUint64(after, a.cur.Lamports)
		if !a.changed() {
			continue
		}
		if !a.IsWritable() {
			return nil, fmt.Errorf("%s: %w", a.Address().Hex(), domain.ErrAccountNotWritable)
		}
		if (a.orig.Owner != a.cur.Owner || !bytes.Equal(a.orig.Data, a.cur.Data)) && !ic.mayRewrite(a) {
			return nil, fmt.Errorf("%s: %w", a.Address().Hex(), ErrIllegalDataChange)
		}
		if a.cur.Lamports < a.orig.Lamports && !ic.mayDebit(a) {
			return nil, fmt.Errorf("%s: %w", a.Address().Hex(), ErrIllegalDebit)
		}
		w := a.cur.Clone()
		w.Version = a.orig.Version
		writes = append(writes, w)
	}
	if before.Cmp(after) != 0 {
		return nil, fmt.Errorf("%w: %s before, %s after", ErrLamportsNotConserved, before, after)
	}
	return writes, nil
}
