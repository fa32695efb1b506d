package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// Faucet credits native currency.
type Faucet interface {
	Faucet(ctx context.Context, addr domain.Address, lamports uint64) (string, error)
}

// FeedPublisher writes oracle observations.
type FeedPublisher interface {
	PublishFeed(ctx context.Context, feed domain.Address, value, confidence float64, at time.Time) (domain.FeedObservation, error)
}

// AdminHandler serves operator endpoints. They sit behind the API key.
type AdminHandler struct {
	faucet Faucet
	feeds  FeedPublisher
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(faucet Faucet, feeds FeedPublisher, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{faucet: faucet, feeds: feeds, logger: logger}
}

type faucetRequest struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// Faucet credits lamports to an address.
// POST /api/admin/faucet
func (h *AdminHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(req.Address)
	txID, err := h.faucet.Faucet(r.Context(), addr, req.Lamports)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: faucet",
		slog.String("address", addr.Hex()),
		slog.Uint64("lamports", req.Lamports),
	)
	writeJSON(w, http.StatusOK, map[string]any{"tx_id": txID, "address": addr, "lamports": req.Lamports})
}

type feedRequest struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	// At is Unix seconds; zero means now.
	At int64 `json:"at,omitempty"`
}

// PushFeed records a new observation for a feed.
// POST /api/admin/feeds/{address}
func (h *AdminHandler) PushFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := parseAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req feedRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var at time.Time
	if req.At != 0 {
		at = time.Unix(req.At, 0)
	}
	obs, err := h.feeds.PublishFeed(r.Context(), feed, req.Value, req.Confidence, at)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}
