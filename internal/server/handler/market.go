package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	GetMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error)
	ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.MarketSnapshot, int64, error)
	Quote(ctx context.Context, marketID string, amount uint64, isYes bool) (service.BetQuote, error)
}

// MarketHandler serves market queries.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.MarketSnapshot `json:"markets"`
	Total   int64                   `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// ListMarkets pages through the market mirror.
// GET /api/markets?status=active&creator=0x..&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter domain.MarketFilter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseMarketStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &st
	}
	if v := q.Get("creator"); v != "" {
		if !common.IsHexAddress(v) {
			writeError(w, http.StatusBadRequest, "invalid creator address")
			return
		}
		c := common.HexToAddress(v)
		filter.Creator = &c
	}

	markets, total, err := h.markets.ListMarkets(r.Context(), filter, opts)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	if markets == nil {
		markets = []domain.MarketSnapshot{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns the current state of one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	snap, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Quote previews a bet.
// GET /api/markets/{id}/quote?amount=100&side=yes
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	var isYes bool
	switch strings.ToLower(q.Get("side")) {
	case "yes", "a", "":
		isYes = true
	case "no", "b":
	default:
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	quote, err := h.markets.Quote(r.Context(), r.PathValue("id"), amount, isYes)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
