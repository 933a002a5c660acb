package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// AssetService defines the asset reads the handler needs.
type AssetService interface {
	GetNFTOwner(ctx context.Context, tokenID uint64) (string, error)
	GetAssetData(ctx context.Context, owner string, assetID uint64) (domain.AssetRecord, error)
}

// AssetHandler serves NFT and registered-asset reads.
type AssetHandler struct {
	assets AssetService
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, logger: logHandler(logger, "asset")}
}

// GetNFTOwner returns the owner of an NFT.
// GET /api/assets/nft/{id}/owner
func (h *AssetHandler) GetNFTOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := h.assets.GetNFTOwner(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "nft owner", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": id, "owner": owner})
}

// GetAsset returns a registered asset record.
// GET /api/assets/{owner}/{id}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.assets.GetAssetData(r.Context(), pathParam(r, "owner"), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "asset data", err)
		return
	}
	if !rec.Found {
		writeJSON(w, http.StatusNotFound, rec)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
