package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

var (
	testProgram = pda.ProgramID("token-test")
	alice       = pda.ProgramID("alice")
	bob         = pda.ProgramID("bob")
)

// setup returns an invocation signed by alice over a fresh mint and the
// associated accounts of alice and bob.
func setup(t *testing.T) (*vm.InvokeContext, *vm.AccountInfo, *vm.AccountInfo, *vm.AccountInfo) {
	t.Helper()
	mint := pda.ProgramID("mint")
	metas := []vm.AccountMeta{
		{Address: alice, Signer: true, Writable: true},
		{Address: mint, Writable: true},
		{Address: pda.TokenAccountAddress(alice, mint), Writable: true},
		{Address: pda.TokenAccountAddress(bob, mint), Writable: true},
	}
	ic := vm.NewInvokeContext(context.Background(), testProgram, time.Now(), alice, metas, nil)
	accts := ic.Accounts()
	if err := InitMint(accts[1], alice, 6, Metadata{Name: "Yes", Symbol: "YES"}); err != nil {
		t.Fatal(err)
	}
	for i, owner := range []domain.Address{alice, bob} {
		if err := InitAccount(accts[2+i], accts[1], owner); err != nil {
			t.Fatal(err)
		}
	}
	return ic, accts[1], accts[2], accts[3]
}

func TestMintAndTransfer(t *testing.T) {
	ic, mint, aliceAcct, bobAcct := setup(t)
	auth, err := ic.SignerAuthority(ic.Accounts()[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := MintTo(mint, aliceAcct, auth, 1000); err != nil {
		t.Fatal(err)
	}
	if err := Transfer(aliceAcct, bobAcct, auth, 400); err != nil {
		t.Fatal(err)
	}

	if got, _ := Balance(aliceAcct); got != 600 {
		t.Errorf("alice = %d, want 600", got)
	}
	if got, _ := Balance(bobAcct); got != 400 {
		t.Errorf("bob = %d, want 400", got)
	}
	m, err := LoadMint(mint)
	if err != nil {
		t.Fatal(err)
	}
	if m.Supply != 1000 || m.Symbol != "YES" {
		t.Errorf("mint = %+v", m)
	}
	if _, err := ic.Writes(); err != nil {
		t.Fatalf("Writes: %v", err)
	}
}

func TestTransferChecks(t *testing.T) {
	ic, mint, aliceAcct, bobAcct := setup(t)
	auth, _ := ic.SignerAuthority(ic.Accounts()[0])
	if err := MintTo(mint, aliceAcct, auth, 10); err != nil {
		t.Fatal(err)
	}

	if err := Transfer(aliceAcct, bobAcct, auth, 11); !errors.Is(err, domain.ErrTokenInsufficientFunds) {
		t.Errorf("overdraw: err = %v", err)
	}
	if err := Transfer(bobAcct, aliceAcct, auth, 1); !errors.Is(err, domain.ErrTokenOwnerMismatch) {
		t.Errorf("spend bob's tokens as alice: err = %v", err)
	}
	if err := MintTo(mint, aliceAcct, vm.Authority{}, 1); !errors.Is(err, domain.ErrTokenOwnerMismatch) {
		t.Errorf("mint without authority: err = %v", err)
	}
}

func TestInitAccountIsIdempotent(t *testing.T) {
	_, mint, aliceAcct, _ := setup(t)
	if err := InitAccount(aliceAcct, mint, alice); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if err := InitAccount(aliceAcct, mint, bob); !errors.Is(err, domain.ErrConstraintSeeds) {
		t.Fatalf("wrong owner: err = %v", err)
	}
}

func TestInitMintTwiceFails(t *testing.T) {
	_, mint, _, _ := setup(t)
	if err := InitMint(mint, alice, 6, Metadata{}); !errors.Is(err, domain.ErrAccountAlreadyInUse) {
		t.Fatalf("err = %v", err)
	}
}
