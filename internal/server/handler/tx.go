package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/minimarket/internal/vm"
)

// TxSubmitter is the write path the tx handler needs.
type TxSubmitter interface {
	Submit(ctx context.Context, tx *vm.Transaction) (vm.Receipt, error)
}

// TxHandler accepts signed transactions.
type TxHandler struct {
	txs    TxSubmitter
	logger *slog.Logger
}

// NewTxHandler creates a TxHandler.
func NewTxHandler(txs TxSubmitter, logger *slog.Logger) *TxHandler {
	return &TxHandler{txs: txs, logger: logger}
}

// SubmitTx executes a signed transaction and returns its receipt.
// POST /api/tx
func (h *TxHandler) SubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx vm.Transaction
	if err := decodeBody(w, r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := h.txs.Submit(r.Context(), &tx)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
