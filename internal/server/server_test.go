package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/crypto"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/oracle"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/server/handler"
	"github.com/alanyoungcy/minimarket/internal/service"
	"github.com/alanyoungcy/minimarket/internal/store/memory"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

const apiKey = "test-key"

type env struct {
	t       *testing.T
	srv     *httptest.Server
	id      domain.Address
	nonce   atomic.Uint64
	admin   *crypto.Signer
	feeAuth *crypto.Signer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	id := pda.ProgramID(program.DefaultProgramName)
	accounts := memory.NewAccountStore()
	feeds := memory.NewFeedStore()
	events := memory.NewEventStore()
	mirror := memory.NewMarketMirror()

	log := service.NewEventLog(events, nil, logger)
	markets := service.NewMarketService(id, accounts, mirror, nil, logger)
	mirrorSvc := service.NewMirror(id, accounts, mirror, nil, nil, time.Minute, logger)
	exec := vm.NewExecutor(accounts, vm.Config{FaucetEnabled: true},
		[]vm.Program{program.New(id, feeds, oracle.NewGate(oracle.DefaultMaxConfidence))},
		vm.WithEventSink(log), vm.WithEventSink(mirrorSvc), vm.WithLogger(logger))
	txs := service.NewTxService(exec, nil, service.TxLimit{}, logger)

	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health:   handler.NewHealthHandler("node", id.Hex(), nil, logger),
		Tx:       handler.NewTxHandler(txs, logger),
		Accounts: handler.NewAccountHandler(markets, logger),
		Markets:  handler.NewMarketHandler(markets, logger),
		Events:   handler.NewEventHandler(log, logger),
		Admin:    handler.NewAdminHandler(txs, oracle.NewPublisher(feeds, logger), logger),
	}, nil, nil, logger)

	e := &env{t: t, srv: httptest.NewServer(srv.Handler()), id: id}
	t.Cleanup(e.srv.Close)
	e.admin = signer(t)
	e.feeAuth = signer(t)
	return e
}

func signer(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (e *env) do(method, path string, body any, key string) (int, map[string]any) {
	e.t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, rdr)
	if err != nil {
		e.t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *env) signed(s *crypto.Signer, ix vm.Instruction) *vm.Transaction {
	e.t.Helper()
	tx := &vm.Transaction{Instruction: ix, Nonce: e.nonce.Add(1), ValidUntil: time.Now().Add(time.Minute).Unix()}
	if err := tx.Sign(s); err != nil {
		e.t.Fatal(err)
	}
	return tx
}

func (e *env) faucet(addr domain.Address) {
	e.t.Helper()
	code, body := e.do(http.MethodPost, "/api/admin/faucet", map[string]any{"address": addr.Hex(), "lamports": 5_000_000}, apiKey)
	if code != http.StatusOK {
		e.t.Fatalf("faucet: %d %v", code, body)
	}
}

func (e *env) initialize() {
	e.t.Helper()
	e.faucet(e.admin.Address())
	tx := e.signed(e.admin, program.InitializeIx(e.id, e.admin.Address(), program.InitializeParams{
		FeeAuthority: e.feeAuth.Address(), CreatorFeeAmount: 500, MarketCount: 100_000, Decimal: 6, BettingFeeBps: 200, FundFeeBps: 100,
	}))
	if code, body := e.do(http.MethodPost, "/api/tx", tx, ""); code != http.StatusOK {
		e.t.Fatalf("initialize: %d %v", code, body)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(http.MethodGet, "/api/health", nil, "")
	if code != http.StatusOK || body["status"] != "ok" || body["mode"] != "node" {
		t.Fatalf("health: %d %v", code, body)
	}
}

func TestSubmitTxAndReadGlobal(t *testing.T) {
	e := newEnv(t)
	e.initialize()

	code, body := e.do(http.MethodGet, "/api/global", nil, "")
	if code != http.StatusOK {
		t.Fatalf("global: %d %v", code, body)
	}
	if body["betting_fee_bps"].(float64) != 200 {
		t.Fatalf("global = %v", body)
	}

	code, body = e.do(http.MethodGet, "/api/accounts/"+pda.GlobalAddress(e.id).Hex(), nil, "")
	if code != http.StatusOK || body["kind"] != "global" {
		t.Fatalf("account: %d %v", code, body)
	}

	code, body = e.do(http.MethodGet, "/api/events", nil, "")
	events, _ := body["events"].([]any)
	if code != http.StatusOK || len(events) != 1 {
		t.Fatalf("events: %d %v", code, body)
	}
}

func TestProgramErrorsAre422(t *testing.T) {
	e := newEnv(t)
	e.initialize()
	creator := signer(t)
	e.faucet(creator.Address())

	wrongFee := signer(t).Address()
	ix, err := program.InitMarketIx(e.id, creator.Address(), wrongFee, pda.ProgramID("feed"), program.MarketParams{
		MarketID: "m", Value: 1, TokenAmount: 10, TokenPrice: 1, Date: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	code, body := e.do(http.MethodPost, "/api/tx", e.signed(creator, ix), "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d %v", code, body)
	}
	errBody := body["error"].(map[string]any)
	if errBody["code"].(float64) != float64(domain.ErrInvalidFeeAuthority.Code) || errBody["name"] != "InvalidFeeAuthority" {
		t.Fatalf("error = %v", errBody)
	}
}

func TestReplayIsRejected(t *testing.T) {
	e := newEnv(t)
	e.faucet(e.admin.Address())
	tx := e.signed(e.admin, program.InitializeIx(e.id, e.admin.Address(), program.InitializeParams{FeeAuthority: e.feeAuth.Address()}))
	if code, body := e.do(http.MethodPost, "/api/tx", tx, ""); code != http.StatusOK {
		t.Fatalf("first: %d %v", code, body)
	}
	code, _ := e.do(http.MethodPost, "/api/tx", tx, "")
	if code != http.StatusConflict && code != http.StatusUnprocessableEntity {
		t.Fatalf("replay status = %d", code)
	}
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/api/tx", map[string]any{"bogus": 1}, http.StatusBadRequest},
		{http.MethodGet, "/api/accounts/not-an-address", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/accounts/" + signer(t).Address().Hex(), nil, http.StatusNotFound},
		{http.MethodGet, "/api/markets/none", nil, http.StatusNotFound},
		{http.MethodGet, "/api/markets/none/quote?amount=0", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/markets?status=open", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/events?since=yesterday", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code, body := e.do(tt.method, tt.path, tt.body, ""); code != tt.want {
			t.Errorf("%s %s = %d %v, want %d", tt.method, tt.path, code, body, tt.want)
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)
	addr := signer(t).Address()
	if code, _ := e.do(http.MethodPost, "/api/admin/faucet", map[string]any{"address": addr.Hex(), "lamports": 1}, ""); code != http.StatusUnauthorized {
		t.Fatalf("faucet without key = %d", code)
	}

	feed := pda.ProgramID("feed/sol")
	code, body := e.do(http.MethodPost, "/api/admin/feeds/"+feed.Hex(), map[string]any{"value": 142.5, "confidence": 0.1}, apiKey)
	if code != http.StatusOK || body["value"].(float64) != 142.5 {
		t.Fatalf("feed push: %d %v", code, body)
	}
	code, _ = e.do(http.MethodPost, "/api/admin/feeds/"+feed.Hex(), map[string]any{"value": 1, "confidence": -1}, apiKey)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("negative confidence = %d", code)
	}
}

func TestMarketRoutes(t *testing.T) {
	e := newEnv(t)
	e.initialize()
	creator := signer(t)
	e.faucet(creator.Address())

	send := func(ix vm.Instruction, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		if code, body := e.do(http.MethodPost, "/api/tx", e.signed(creator, ix), ""); code != http.StatusOK {
			t.Fatalf("%s: %d %v", ix.Name, code, body)
		}
	}
	send(program.InitMarketIx(e.id, creator.Address(), e.feeAuth.Address(), pda.ProgramID("feed"), program.MarketParams{
		MarketID: "rain", Value: 10, Range: domain.RangeGreaterThan, TokenAmount: 1_000, TokenPrice: 500_000, Date: time.Now().Add(time.Hour).Unix(),
	}))
	send(program.MintTokenIx(e.id, creator.Address(), e.feeAuth.Address(), "rain"))
	send(program.AddLiquidityIx(e.id, creator.Address(), e.feeAuth.Address(), "rain", 150_000))

	code, body := e.do(http.MethodGet, "/api/markets/rain", nil, "")
	if code != http.StatusOK || body["market"].(map[string]any)["status"] != "active" {
		t.Fatalf("market: %d %v", code, body)
	}
	code, body = e.do(http.MethodGet, "/api/markets?status=active", nil, "")
	if code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("list: %d %v", code, body)
	}
	code, body = e.do(http.MethodGet, "/api/markets/rain/quote?amount=100&side=no", nil, "")
	if code != http.StatusOK || body["shares"].(float64) != 89 {
		t.Fatalf("quote: %d %v", code, body)
	}
}
