package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/service"
)

// StakingService defines what the staking handler needs.
type StakingService interface {
	StakePXT(ctx context.Context, amount float64) (domain.TxResult, error)
	LockAsset(ctx context.Context, req service.LockRequest) (domain.TxResult, error)
}

// StakingHandler serves staking and token lock endpoints.
type StakingHandler struct {
	staking StakingService
	logger  *slog.Logger
}

// NewStakingHandler creates a StakingHandler.
func NewStakingHandler(staking StakingService, logger *slog.Logger) *StakingHandler {
	return &StakingHandler{staking: staking, logger: logHandler(logger, "staking")}
}

type stakeRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

type lockRequest struct {
	TokenContract  string  `json:"tokenContract" validate:"required,contractid"`
	Symbol         string  `json:"symbol" validate:"required,max=32"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	DurationBlocks uint64  `json:"durationBlocks" validate:"gt=0"`
}

// Stake stakes PXT on the RWS contract.
// POST /api/staking/stake
func (h *StakingHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.staking.StakePXT(r.Context(), req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "stake", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// Lock locks an asset token for a number of blocks.
// POST /api/staking/lock
func (h *StakingHandler) Lock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.staking.LockAsset(r.Context(), service.LockRequest{
		TokenContract:  req.TokenContract,
		Symbol:         req.Symbol,
		Amount:         req.Amount,
		DurationBlocks: req.DurationBlocks,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "lock asset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
