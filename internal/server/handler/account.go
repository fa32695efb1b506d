package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/pda"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/token"
)

// AccountReader reads raw and decoded program state.
type AccountReader interface {
	ProgramID() domain.Address
	GetAccount(ctx context.Context, addr domain.Address) (domain.Account, error)
	GetGlobal(ctx context.Context) (domain.Global, error)
}

// AccountHandler serves raw accounts and the Global record.
type AccountHandler struct {
	accounts AccountReader
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountReader, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type accountResponse struct {
	Address  domain.Address `json:"address"`
	Owner    domain.Address `json:"owner"`
	Lamports uint64         `json:"lamports"`
	Data     hexutil.Bytes  `json:"data"`
	Version  uint64         `json:"version"`
	Kind     string         `json:"kind"`
	Decoded  any            `json:"decoded,omitempty"`
}

// GetAccount returns an account with its data decoded when the layout is
// known.
// GET /api/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.accounts.GetAccount(r.Context(), addr)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	kind, decoded := decodeAccount(h.accounts.ProgramID(), a)
	writeJSON(w, http.StatusOK, accountResponse{
		Address:  a.Address,
		Owner:    a.Owner,
		Lamports: a.Lamports,
		Data:     a.Data,
		Version:  a.Version,
		Kind:     kind,
		Decoded:  decoded,
	})
}

// GetGlobal returns the decoded Global record.
// GET /api/global
func (h *AccountHandler) GetGlobal(w http.ResponseWriter, r *http.Request) {
	g, err := h.accounts.GetGlobal(r.Context())
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func decodeAccount(programID domain.Address, a domain.Account) (string, any) {
	switch a.Owner {
	case programID:
		if program.IsMarket(a.Data) {
			if m, err := program.DecodeMarket(a.Data); err == nil {
				return "market", m
			}
		}
		if g, err := program.DecodeGlobal(a.Data); err == nil {
			return "global", g
		}
	case pda.TokenProgramID:
		if m, err := token.DecodeMint(a.Data); err == nil {
			return "mint", m
		}
		if ta, err := token.DecodeAccount(a.Data); err == nil {
			return "token_account", ta
		}
	case pda.SystemProgramID:
		return "wallet", nil
	}
	return "unknown", nil
}
