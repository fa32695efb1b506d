package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/service"
)

// MetadataReader serves published token metadata documents.
type MetadataReader interface {
	Get(ctx context.Context, mint domain.Address) (service.TokenMetadata, error)
}

// MetadataHandler serves token metadata documents.
type MetadataHandler struct {
	docs   MetadataReader
	logger *slog.Logger
}

// NewMetadataHandler creates a MetadataHandler.
func NewMetadataHandler(docs MetadataReader, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{docs: docs, logger: logger}
}

// GetMetadata returns the metadata document of an outcome mint.
// GET /api/metadata/{mint}
func (h *MetadataHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	mint, err := parseAddress(r, "mint")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := h.docs.Get(r.Context(), mint)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
