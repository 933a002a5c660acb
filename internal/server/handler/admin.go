package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// AdminService defines what the admin handler needs.
type AdminService interface {
	IsContractAdmin(ctx context.Context) bool
	UpdateMarketplaceContract(ctx context.Context, principal, roleHex string) (domain.TxResult, error)
	UpdateKycContract(ctx context.Context, principal, roleHex string) (domain.TxResult, error)
	SetWhitelisted(ctx context.Context, tokenContract string, status bool) (domain.TxResult, error)
}

// AdminHandler serves marketplace administration endpoints. The contract
// enforces ownership; the status endpoint only lets a UI hide the controls.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logHandler(logger, "admin")}
}

type roleUpdateRequest struct {
	Principal string `json:"principal" validate:"required,principal"`
	Role      string `json:"role" validate:"required,hexadecimal"`
}

type whitelistRequest struct {
	TokenContract string `json:"tokenContract" validate:"required,contractid"`
	Status        *bool  `json:"status" validate:"required"`
}

// Status reports whether the connected account owns the marketplace.
// GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"isAdmin": h.admin.IsContractAdmin(r.Context())})
}

// UpdateMarketplaceContract grants a buffer role to a contract.
// POST /api/admin/marketplace-contract
func (h *AdminHandler) UpdateMarketplaceContract(w http.ResponseWriter, r *http.Request) {
	var req roleUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.admin.UpdateMarketplaceContract(r.Context(), req.Principal, req.Role)
	h.respond(w, r, "update marketplace contract", res, err)
}

// UpdateKycContract grants a numeric role to a KYC contract.
// POST /api/admin/kyc-contract
func (h *AdminHandler) UpdateKycContract(w http.ResponseWriter, r *http.Request) {
	var req roleUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.admin.UpdateKycContract(r.Context(), req.Principal, req.Role)
	h.respond(w, r, "update kyc contract", res, err)
}

// SetWhitelisted changes whether a token may be listed.
// POST /api/admin/whitelist
func (h *AdminHandler) SetWhitelisted(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.admin.SetWhitelisted(r.Context(), req.TokenContract, *req.Status)
	h.respond(w, r, "set whitelisted", res, err)
}

func (h *AdminHandler) respond(w http.ResponseWriter, r *http.Request, op string, res domain.TxResult, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
