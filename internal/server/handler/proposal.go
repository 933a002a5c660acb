package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/service"
)

// TokenizationService defines what the proposal handler needs.
type TokenizationService interface {
	AddForTokenization(ctx context.Context, req service.TokenizeRequest) (domain.TokenizationProposal, error)
	VoteTokenize(ctx context.Context, owner string, assetID uint64, yes bool) (domain.TxResult, error)
	ListProposals(ctx context.Context, activeOnly bool, opts domain.ListOpts) ([]domain.TokenizationProposal, error)
	GetProposal(ctx context.Context, id string) (domain.TokenizationProposal, error)
}

// ProposalHandler serves tokenization and voting endpoints.
type ProposalHandler struct {
	tokenization TokenizationService
	logger       *slog.Logger
}

// NewProposalHandler creates a ProposalHandler.
func NewProposalHandler(tokenization TokenizationService, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{tokenization: tokenization, logger: logHandler(logger, "proposal")}
}

type tokenizeRequest struct {
	AssetID     uint64   `json:"assetId"`
	AssetType   string   `json:"assetType" validate:"required"`
	Name        string   `json:"assetName" validate:"required,max=256"`
	Symbol      string   `json:"symbol" validate:"required,max=32"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Value       float64  `json:"value" validate:"gt=0"`
	Images      []string `json:"images" validate:"dive,required"`
}

type voteRequest struct {
	Vote *bool `json:"vote" validate:"required"`
}

// Tokenize submits an asset for tokenization.
// POST /api/tokenize
func (h *ProposalHandler) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.tokenization.AddForTokenization(r.Context(), service.TokenizeRequest{
		AssetID:     req.AssetID,
		AssetType:   req.AssetType,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Location:    req.Location,
		Description: req.Description,
		Value:       req.Value,
		Images:      req.Images,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "tokenize", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListProposals returns proposals, only those still open with ?active=true.
// GET /api/proposals?active=true&limit=50&offset=0
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	active := r.URL.Query().Get("active") == "true"
	ps, err := h.tokenization.ListProposals(r.Context(), active, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list proposals", err)
		return
	}
	if ps == nil {
		ps = []domain.TokenizationProposal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": ps})
}

// GetProposal returns one proposal.
// GET /api/proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.tokenization.GetProposal(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Vote casts the connected account's vote on a proposal.
// POST /api/proposals/{id}/vote
func (h *ProposalHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.tokenization.GetProposal(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "vote", err)
		return
	}
	res, err := h.tokenization.VoteTokenize(r.Context(), p.AssetOwner, p.AssetID, *req.Vote)
	if err != nil {
		writeServiceError(w, r, h.logger, "vote", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
