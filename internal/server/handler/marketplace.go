package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/service"
)

// MarketplaceService defines what the marketplace handler needs from the
// service layer.
type MarketplaceService interface {
	View(ctx context.Context) (domain.MarketplaceData, error)
	Refresh(ctx context.Context) (domain.MarketplaceData, error)
	ListAsset(ctx context.Context, req service.ListRequest) (domain.TxResult, error)
	CancelListing(ctx context.Context, id uint64, assetContract string) (domain.TxResult, error)
	FulfilListing(ctx context.Context, id uint64, assetContract, paymentContract string) (domain.TxResult, error)
}

// ListingIndex is the indexer's copy of the listings map.
type ListingIndex interface {
	ListActive(ctx context.Context, tipHeight uint64, opts domain.ListOpts) ([]domain.Listing, error)
}

// TipSource reports the chain tip height.
type TipSource interface {
	ChainTip(ctx context.Context) (uint64, error)
}

// MarketplaceHandler serves marketplace endpoints.
type MarketplaceHandler struct {
	market MarketplaceService
	index  ListingIndex
	tips   TipSource
	logger *slog.Logger
}

// NewMarketplaceHandler creates a MarketplaceHandler. index may be nil when
// no listing store is configured.
func NewMarketplaceHandler(market MarketplaceService, index ListingIndex, tips TipSource, logger *slog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{market: market, index: index, tips: tips, logger: logHandler(logger, "marketplace")}
}

type listAssetRequest struct {
	AssetContract        string  `json:"assetContract" validate:"required,contractid"`
	Amount               float64 `json:"amount" validate:"gt=0"`
	Price                float64 `json:"price" validate:"gt=0"`
	ExpiryBlocks         uint64  `json:"expiryBlocks" validate:"gt=0"`
	Taker                string  `json:"taker,omitempty" validate:"omitempty,principal"`
	PaymentAssetContract string  `json:"paymentAssetContract,omitempty"`
}

type listingActionRequest struct {
	AssetContract        string `json:"assetContract" validate:"required,contractid"`
	PaymentAssetContract string `json:"paymentAssetContract,omitempty" validate:"omitempty,contractid"`
}

// GetMarketplace returns the connected account's marketplace snapshot.
// GET /api/marketplace
func (h *MarketplaceHandler) GetMarketplace(w http.ResponseWriter, r *http.Request) {
	data, err := h.market.View(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get marketplace", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// RefreshMarketplace fetches a complete new snapshot.
// POST /api/marketplace/refresh
func (h *MarketplaceHandler) RefreshMarketplace(w http.ResponseWriter, r *http.Request) {
	data, err := h.market.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "refresh marketplace", err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ListIndexed returns active listings from the index, without chain reads
// beyond the tip height.
// GET /api/marketplace/listings?limit=50&offset=0
func (h *MarketplaceHandler) ListIndexed(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, "listing index not configured")
		return
	}
	tip, err := h.tips.ChainTip(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "chain tip", err)
		return
	}
	listings, err := h.index.ListActive(r.Context(), tip, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list indexed listings", err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tipHeight": tip, "listings": listings})
}

// ListAsset creates a listing.
// POST /api/marketplace/listings
func (h *MarketplaceHandler) ListAsset(w http.ResponseWriter, r *http.Request) {
	var req listAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.market.ListAsset(r.Context(), service.ListRequest{
		AssetContract:        req.AssetContract,
		Amount:               req.Amount,
		Price:                req.Price,
		ExpiryBlocks:         req.ExpiryBlocks,
		Taker:                req.Taker,
		PaymentAssetContract: req.PaymentAssetContract,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list asset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// CancelListing cancels one of the caller's listings.
// POST /api/marketplace/listings/{id}/cancel
func (h *MarketplaceHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req listingActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.market.CancelListing(r.Context(), id, req.AssetContract)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel listing", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// FulfilListing buys a listing, paying in STX unless a payment token is
// given.
// POST /api/marketplace/listings/{id}/fulfil
func (h *MarketplaceHandler) FulfilListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req listingActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.market.FulfilListing(r.Context(), id, req.AssetContract, req.PaymentAssetContract)
	if err != nil {
		writeServiceError(w, r, h.logger, "fulfil listing", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
