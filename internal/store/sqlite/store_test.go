package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAccountStoreCommit(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore(newTestClient(t).DB())
	a, b := pda.ProgramID("a"), pda.ProgramID("b")
	owner := pda.ProgramID("owner")

	err := s.Commit(ctx, domain.CommitRequest{TxID: "t1", At: time.Now(), Accounts: []domain.Account{
		{Address: a, Owner: owner, Lamports: math.MaxUint64, Data: []byte{1, 2, 3}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 1 || got.Lamports != math.MaxUint64 || got.Owner != owner || string(got.Data) != "\x01\x02\x03" {
		t.Fatalf("got %+v", got)
	}

	// Stale version on a plus a fresh b: neither may land.
	err = s.Commit(ctx, domain.CommitRequest{TxID: "t2", Accounts: []domain.Account{
		{Address: b, Owner: owner, Lamports: 1},
		{Address: a, Owner: owner, Lamports: 2, Version: 5},
	}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := s.Get(ctx, b); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("b after failed commit: %v", err)
	}

	// The failed commit must not have consumed its tx id.
	err = s.Commit(ctx, domain.CommitRequest{TxID: "t2", Accounts: []domain.Account{
		{Address: a, Owner: owner, Lamports: 2, Version: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Commit(ctx, domain.CommitRequest{TxID: "t2", Accounts: []domain.Account{
		{Address: a, Owner: owner, Lamports: 3, Version: 2},
	}})
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("replay: err = %v", err)
	}

	err = s.Commit(ctx, domain.CommitRequest{TxID: "t3", Accounts: []domain.Account{{Address: a}}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("create over existing: err = %v", err)
	}
}

func TestAccountStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore(newTestClient(t).DB())
	owner := pda.ProgramID("owner")
	var accts []domain.Account
	for _, name := range []string{"x", "y", "z"} {
		accts = append(accts, domain.Account{Address: pda.ProgramID(name), Owner: owner, Data: []byte(name)})
	}
	accts = append(accts, domain.Account{Address: pda.ProgramID("w"), Owner: pda.SystemProgramID, Lamports: 9})
	if err := s.Commit(ctx, domain.CommitRequest{TxID: "seed", Accounts: accts}); err != nil {
		t.Fatal(err)
	}

	many, err := s.GetMany(ctx, []domain.Address{accts[0].Address, accts[3].Address, pda.ProgramID("missing")})
	if err != nil {
		t.Fatal(err)
	}
	if len(many) != 2 || many[accts[3].Address].Lamports != 9 {
		t.Fatalf("GetMany = %+v", many)
	}

	all, err := s.ListByOwner(ctx, owner, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListByOwner returned %d accounts", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Address.Cmp(all[i].Address) >= 0 {
			t.Fatal("ListByOwner not ordered by address")
		}
	}
	page, err := s.ListByOwner(ctx, owner, domain.ListOpts{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Address != all[2].Address {
		t.Fatalf("page = %+v", page)
	}
}

func TestPruneProcessed(t *testing.T) {
	ctx := context.Background()
	s := NewAccountStore(newTestClient(t).DB())
	now := time.Now()
	for id, at := range map[string]time.Time{"old": now.Add(-time.Hour), "new": now} {
		if err := s.Commit(ctx, domain.CommitRequest{TxID: id, At: at}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.PruneProcessed(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if err := s.Commit(ctx, domain.CommitRequest{TxID: "old", At: now}); err != nil {
		t.Fatalf("pruned id still rejected: %v", err)
	}
}

func TestEventStore(t *testing.T) {
	ctx := context.Background()
	s := NewEventStore(newTestClient(t).DB())
	base := time.Unix(1_700_000_000, 0).UTC()
	payload, _ := json.Marshal(domain.MarketStatusUpdatedEvent{MarketID: "m1", From: "created", To: "prepare"})
	events := []domain.Event{
		{ID: "e1", Kind: domain.EventMarketCreated, MarketID: "m1", TxID: "t1", At: base, Payload: []byte(`{}`)},
		{ID: "e2", Kind: domain.EventMarketStatusUpdated, MarketID: "m1", TxID: "t2", At: base.Add(time.Minute), Payload: payload},
		{ID: "e3", Kind: domain.EventMarketCreated, MarketID: "m2", TxID: "t3", At: base.Add(2 * time.Minute), Payload: []byte(`{}`)},
	}
	if err := s.Append(ctx, events); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, events[:1]); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	m1, err := s.List(ctx, "m1", domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(m1) != 2 || m1[0].ID != "e2" || string(m1[0].Payload) != string(payload) || !m1[0].At.Equal(events[1].At) {
		t.Fatalf("List(m1) = %+v", m1)
	}
	all, err := s.List(ctx, "", domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != "e3" {
		t.Fatalf("List(all, 1) = %+v", all)
	}

	old, err := s.ListBefore(ctx, base.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(old) != 2 || old[0].ID != "e1" {
		t.Fatalf("ListBefore = %+v", old)
	}
	n, err := s.DeleteBefore(ctx, base.Add(90*time.Second))
	if err != nil || n != 2 {
		t.Fatalf("DeleteBefore = %d, %v", n, err)
	}
}
