package pda

import (
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

var testProgram = ProgramID("minimarket")

func TestDeriveIsDeterministic(t *testing.T) {
	a := GlobalAddress(testProgram)
	b := GlobalAddress(testProgram)
	if a != b {
		t.Fatalf("global address changed between calls: %s != %s", a, b)
	}
	if other := GlobalAddress(ProgramID("other")); other == a {
		t.Fatal("global address does not depend on program id")
	}
}

func TestMarketAddress(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "short id", id: "btc-50k"},
		{name: "max length", id: strings.Repeat("x", MaxSeedLen)},
		{name: "too long", id: strings.Repeat("x", MaxSeedLen+1), wantErr: domain.ErrMaxSeedLengthExceeded},
		{name: "empty", id: "", wantErr: domain.ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := MarketAddress(testProgram, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("MarketAddress(%q) error = %v, want %v", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MarketAddress(%q): %v", tt.id, err)
			}
			if addr == domain.ZeroAddress {
				t.Fatal("zero address")
			}
		})
	}
}

func TestDistinctMarketsDoNotCollide(t *testing.T) {
	seen := map[domain.Address]string{}
	for _, id := range []string{"a", "b", "ab", "btc-50k", "btc-50K", "eth"} {
		addr, err := MarketAddress(testProgram, id)
		if err != nil {
			t.Fatal(err)
		}
		if prev, ok := seen[addr]; ok {
			t.Fatalf("%q and %q derived the same address", prev, id)
		}
		seen[addr] = id
	}
}

func TestSeedBoundariesAreUnambiguous(t *testing.T) {
	a, err := Derive(testProgram, []byte("ab"), []byte("c"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Derive(testProgram, []byte("a"), []byte("bc"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("seed boundaries are not part of the derivation")
	}
}

func TestForMarket(t *testing.T) {
	accts, err := ForMarket(testProgram, "btc-50k")
	if err != nil {
		t.Fatal(err)
	}
	if accts.MintA == accts.MintB {
		t.Fatal("mint A and mint B collide")
	}
	if accts.MintA != MintAddress(testProgram, accts.Market, domain.TokenRoleA) {
		t.Fatal("mint A does not re-derive")
	}
	if accts.ReserveA != TokenAccountAddress(accts.Market, accts.MintA) {
		t.Fatal("reserve A is not the market's token account")
	}
	if accts.ReserveA == accts.ReserveB {
		t.Fatal("reserves collide")
	}
}

func TestTooManySeeds(t *testing.T) {
	seeds := make([][]byte, MaxSeeds+1)
	if _, err := Derive(testProgram, seeds...); !errors.Is(err, domain.ErrMaxSeedLengthExceeded) {
		t.Fatalf("err = %v, want ErrMaxSeedLengthExceeded", err)
	}
}
