package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{"verbatim", ClientConfig{DSN: "postgres://x"}, "postgres://x"},
		{"defaults", ClientConfig{User: "u", Password: "p", Host: "db", Database: "mm"}, "postgres://u:p@db:5432/mm?sslmode=disable"},
		{"explicit", ClientConfig{User: "u", Password: "p", Host: "db", Port: 6432, Database: "mm", SSLMode: "require"}, "postgres://u:p@db:6432/mm?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN = %q, want %q", got, tt.want)
			}
		})
	}
}

// newTestClient connects to MINIMARKET_TEST_POSTGRES_DSN or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("MINIMARKET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MINIMARKET_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAccountStoreIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	s := NewAccountStore(c.Pool())
	addr := pda.ProgramID("pg-test-" + uuid.NewString())
	txID := uuid.NewString()

	err := s.Commit(ctx, domain.CommitRequest{TxID: txID, At: time.Now(), Accounts: []domain.Account{
		{Address: addr, Owner: pda.SystemProgramID, Lamports: 1 << 63},
	}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got.Lamports != 1<<63 || got.Version != 1 {
		t.Fatalf("got %+v", got)
	}
	err = s.Commit(ctx, domain.CommitRequest{TxID: txID, Accounts: []domain.Account{{Address: addr, Version: 1}}})
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("replay: %v", err)
	}
	err = s.Commit(ctx, domain.CommitRequest{TxID: uuid.NewString(), Accounts: []domain.Account{{Address: addr, Version: 9}}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale: %v", err)
	}
}

func TestMarketMirrorIgnoresOlderVersions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	m := NewMarketMirror(c.Pool())
	id := "pg-" + uuid.NewString()
	snap := domain.MarketSnapshot{
		Address:   pda.ProgramID(id),
		Version:   3,
		Market:    domain.Market{MarketID: id, Status: domain.MarketStatusActive},
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.Upsert(ctx, snap); err != nil {
		t.Fatal(err)
	}
	older := snap
	older.Version = 2
	older.Market.Status = domain.MarketStatusPrepare
	if err := m.Upsert(ctx, older); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 3 || got.Market.Status != domain.MarketStatusActive {
		t.Fatalf("got %+v", got)
	}
}
