package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/minimarket/internal/crypto"
	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/oracle"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/server"
	"github.com/alanyoungcy/minimarket/internal/server/handler"
	"github.com/alanyoungcy/minimarket/internal/service"
	"github.com/alanyoungcy/minimarket/internal/store/memory"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

const apiKey = "test-key"

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"program error", http.StatusUnprocessableEntity, `{"error":{"code":6007,"name":"InvalidFeeAuthority","message":"Invalid fee authority"}}`, domain.ErrInvalidFeeAuthority},
		{"not found", http.StatusNotFound, `{"error":{"message":"market not found"}}`, domain.ErrNotFound},
		{"conflict", http.StatusConflict, `{"error":{"message":"duplicate"}}`, domain.ErrConflict},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, domain.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"missing key"}}`, domain.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `plain text`, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeError(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("decodeError = %v, want %v", err, tt.want)
			}
		})
	}

	err := decodeError(http.StatusUnprocessableEntity, []byte(`{"error":{"code":7001,"name":"Future","message":"new"}}`))
	pe, ok := domain.AsProgramError(err)
	if !ok || pe.Code != 7001 || pe.Name != "Future" {
		t.Fatalf("unknown code = %v", err)
	}

	err = decodeError(http.StatusBadGateway, []byte("upstream down"))
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("bad gateway = %v", err)
	}
}

func TestParsers(t *testing.T) {
	if _, err := parseAddr("0x123"); err == nil {
		t.Error("short address accepted")
	}
	if a, err := parseAddr("0x00000000000000000000000000000000000000aa"); err != nil || a[19] != 0xaa {
		t.Errorf("parseAddr = %v, %v", a, err)
	}

	sides := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"yes", true, false},
		{"YES", true, false},
		{"a", true, false},
		{"no", false, false},
		{"b", false, false},
		{"maybe", false, true},
	}
	for _, tt := range sides {
		got, err := parseSide(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSide(%q) = %v, %v", tt.in, got, err)
		}
	}

	if w, err := parseWhen("1700000000"); err != nil || w.Unix() != 1_700_000_000 {
		t.Errorf("parseWhen unix = %v, %v", w, err)
	}
	if w, err := parseWhen("2030-01-02T03:04:05Z"); err != nil || w.Year() != 2030 {
		t.Errorf("parseWhen rfc3339 = %v, %v", w, err)
	}
	if _, err := parseWhen("tomorrow"); err == nil {
		t.Error("parseWhen accepted garbage")
	}

	for _, bad := range []string{"0", "-5", "1.5", ""} {
		if _, err := parseAmount(bad); err == nil {
			t.Errorf("parseAmount(%q) accepted", bad)
		}
	}
	if n, err := parseAmount("150000"); err != nil || n != 150_000 {
		t.Errorf("parseAmount = %d, %v", n, err)
	}
}

// runCmd executes marketctl with args against apiURL and returns stdout.
func runCmd(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	base := []string{
		"--config", filepath.Join(t.TempDir(), "absent.toml"),
		"--api", apiURL,
		"--api-key", apiKey,
		"--program", program.DefaultProgramName,
	}
	root.SetArgs(append(base, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestAddressCommands(t *testing.T) {
	id := pda.ProgramID(program.DefaultProgramName)

	out, err := runCmd(t, "http://unused", "address", "program")
	if err != nil || strings.TrimSpace(out) != id.Hex() {
		t.Fatalf("program = %q, %v", out, err)
	}

	out, err = runCmd(t, "http://unused", "address", "global")
	if err != nil || strings.TrimSpace(out) != pda.GlobalAddress(id).Hex() {
		t.Fatalf("global = %q, %v", out, err)
	}

	ma, err := pda.ForMarket(id, "rain")
	if err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, "http://unused", "address", "market", "rain")
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []domain.Address{ma.Market, ma.MintA, ma.MintB, ma.ReserveA, ma.ReserveB} {
		if !strings.Contains(out, a.Hex()) {
			t.Errorf("market output missing %s:\n%s", a.Hex(), out)
		}
	}

	owner := newSigner(t).Address()
	out, err = runCmd(t, "http://unused", "address", "ata", owner.Hex(), ma.MintA.Hex())
	if err != nil || strings.TrimSpace(out) != pda.TokenAccountAddress(owner, ma.MintA).Hex() {
		t.Fatalf("ata = %q, %v", out, err)
	}
}

func TestKeygenWritesSealedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")

	if _, err := runCmd(t, "http://unused", "keygen", "--out", path); err == nil {
		t.Fatal("keygen without password succeeded")
	}

	out, err := runCmd(t, "http://unused", "--password", "hunter2", "keygen", "--out", path)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := crypto.OpenKey(data, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, s.Address().Hex()) {
		t.Fatalf("output %q does not name %s", out, s.Address().Hex())
	}

	if _, err := runCmd(t, "http://unused", "--password", "hunter2", "keygen", "--out", path); err == nil {
		t.Fatal("keygen overwrote an existing key without --force")
	}

	out, err = runCmd(t, "http://unused", "--password", "hunter2", "--key-file", path, "address", "wallet")
	if err != nil || strings.TrimSpace(out) != s.Address().Hex() {
		t.Fatalf("wallet = %q, %v", out, err)
	}
}

func newSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// newNode serves an in-memory node with the faucet enabled.
func newNode(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	id := pda.ProgramID(program.DefaultProgramName)
	accounts := memory.NewAccountStore()
	feeds := memory.NewFeedStore()
	mirror := memory.NewMarketMirror()

	log := service.NewEventLog(memory.NewEventStore(), nil, logger)
	markets := service.NewMarketService(id, accounts, mirror, nil, logger)
	mirrorSvc := service.NewMirror(id, accounts, mirror, nil, nil, time.Minute, logger)
	exec := vm.NewExecutor(accounts, vm.Config{FaucetEnabled: true},
		[]vm.Program{program.New(id, feeds, oracle.NewGate(oracle.DefaultMaxConfidence))},
		vm.WithEventSink(log), vm.WithEventSink(mirrorSvc), vm.WithLogger(logger))
	txs := service.NewTxService(exec, nil, service.TxLimit{}, logger)

	srv := server.NewServer(server.Config{APIKey: apiKey}, server.Handlers{
		Health:   handler.NewHealthHandler("node", id.Hex(), nil, logger),
		Tx:       handler.NewTxHandler(txs, logger),
		Accounts: handler.NewAccountHandler(markets, logger),
		Markets:  handler.NewMarketHandler(markets, logger),
		Events:   handler.NewEventHandler(log, logger),
		Admin:    handler.NewAdminHandler(txs, oracle.NewPublisher(feeds, logger), logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestMarketLifecycleThroughCLI(t *testing.T) {
	api := newNode(t)
	admin, feeAuth, creator := newSigner(t), newSigner(t), newSigner(t)
	as := func(s *crypto.Signer, args ...string) string {
		t.Helper()
		out, err := runCmd(t, api, append([]string{"--private-key", s.PrivateKeyHex()}, args...)...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out
	}

	for _, s := range []*crypto.Signer{admin, creator} {
		out := as(admin, "faucet", s.Address().Hex(), "5000000")
		if !strings.Contains(out, "credited 5000000") {
			t.Fatalf("faucet output = %q", out)
		}
	}

	as(admin, "initialize",
		"--fee-authority", feeAuth.Address().Hex(),
		"--creator-fee", "500",
		"--threshold", "100000",
		"--decimal", "6")

	feed := pda.ProgramID("feed/rain")
	out := as(creator, "market", "create", "rain",
		"--feed", feed.Hex(),
		"--value", "10",
		"--range", "gt",
		"--date", time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"--token-amount", "1000",
		"--token-price", "500000")
	if !strings.Contains(out, "market_created") {
		t.Fatalf("create output = %q", out)
	}

	as(creator, "market", "mint", "rain")
	out = as(creator, "market", "fund", "rain", "150000")
	if !strings.Contains(out, "market_status_updated") {
		t.Fatalf("fund output = %q", out)
	}

	out = as(creator, "market", "quote", "rain", "no", "100")
	if !strings.Contains(out, "shares") || !strings.Contains(out, "89") {
		t.Fatalf("quote output = %q", out)
	}

	out = as(creator, "market", "list", "--status", "active")
	if !strings.Contains(out, "rain") || !strings.Contains(out, "1 of 1 market(s)") {
		t.Fatalf("list output = %q", out)
	}

	out = as(creator, "market", "show", "rain")
	if !strings.Contains(out, `"status": "active"`) {
		t.Fatalf("show output = %q", out)
	}
	ma, err := pda.ForMarket(pda.ProgramID(program.DefaultProgramName), "rain")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := NewClient(api, "").Account(context.Background(), ma.MintA)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _ := doc["decoded"].(map[string]any)
	if decoded["uri"] != api+"/api/metadata/"+ma.MintA.Hex() {
		t.Errorf("mint uri = %v", decoded["uri"])
	}
}

func TestProgramErrorSurfacesTyped(t *testing.T) {
	api := newNode(t)
	admin := newSigner(t)
	if _, err := runCmd(t, api, "faucet", admin.Address().Hex(), "5000000"); err != nil {
		t.Fatal(err)
	}
	key := []string{"--private-key", admin.PrivateKeyHex()}
	if _, err := runCmd(t, api, append(key, "initialize")...); err != nil {
		t.Fatal(err)
	}
	_, err := runCmd(t, api, append(key, "initialize")...)
	if _, ok := domain.AsProgramError(err); !ok {
		t.Fatalf("second initialize = %v, want a program error", err)
	}

	_, err = runCmd(t, api, append(key, "market", "show", "missing")...)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("show missing = %v, want not found", err)
	}
}
