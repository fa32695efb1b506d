package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/service"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// Client talks to a node's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Client for the node at baseURL. apiKey may be empty.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Error struct {
		Code    uint32 `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError rebuilds a typed error from an error response: program
// errors by code, transport errors by status.
func decodeError(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	msg := e.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if e.Error.Code != 0 {
		return domain.ProgramErrorFromCode(e.Error.Code, e.Error.Name, msg)
	}
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConflict
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("api: status %d: %s", status, msg)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// Submit sends a signed transaction.
func (c *Client) Submit(ctx context.Context, tx *vm.Transaction) (vm.Receipt, error) {
	var r vm.Receipt
	err := c.do(ctx, http.MethodPost, "/api/tx", tx, &r)
	return r, err
}

// Global returns the decoded Global record.
func (c *Client) Global(ctx context.Context) (domain.Global, error) {
	var g domain.Global
	err := c.do(ctx, http.MethodGet, "/api/global", nil, &g)
	return g, err
}

// Market returns the current state of marketID.
func (c *Client) Market(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	var s domain.MarketSnapshot
	err := c.do(ctx, http.MethodGet, "/api/markets/"+url.PathEscape(marketID), nil, &s)
	return s, err
}

// MarketPage is one page of the market listing.
type MarketPage struct {
	Markets []domain.MarketSnapshot `json:"markets"`
	Total   int64                   `json:"total"`
}

// Markets lists markets, optionally filtered by status.
func (c *Client) Markets(ctx context.Context, status string, limit, offset int) (MarketPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/markets"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var p MarketPage
	err := c.do(ctx, http.MethodGet, path, nil, &p)
	return p, err
}

// Quote previews a bet without submitting it.
func (c *Client) Quote(ctx context.Context, marketID string, amount uint64, isYes bool) (service.BetQuote, error) {
	side := "no"
	if isYes {
		side = "yes"
	}
	q := url.Values{"amount": {strconv.FormatUint(amount, 10)}, "side": {side}}
	var out service.BetQuote
	err := c.do(ctx, http.MethodGet, "/api/markets/"+url.PathEscape(marketID)+"/quote?"+q.Encode(), nil, &out)
	return out, err
}

// Account returns the raw account document.
func (c *Client) Account(ctx context.Context, addr domain.Address) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/api/accounts/"+addr.Hex(), nil, &out)
	return out, err
}

// Faucet credits lamports. Admin only.
func (c *Client) Faucet(ctx context.Context, addr domain.Address, lamports uint64) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin/faucet", map[string]any{
		"address":  addr.Hex(),
		"lamports": lamports,
	}, &out)
	return out.TxID, err
}

// PushFeed records an oracle observation. Admin only.
func (c *Client) PushFeed(ctx context.Context, feed domain.Address, value, confidence float64, at time.Time) (domain.FeedObservation, error) {
	body := map[string]any{"value": value, "confidence": confidence}
	if !at.IsZero() {
		body["at"] = at.Unix()
	}
	var obs domain.FeedObservation
	err := c.do(ctx, http.MethodPost, "/api/admin/feeds/"+feed.Hex(), body, &obs)
	return obs, err
}
