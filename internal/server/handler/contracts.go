package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// ContractGateway submits and evaluates calls with untyped arguments.
type ContractGateway interface {
	CallInferred(ctx context.Context, contract domain.ContractRef, function string, args []any) (domain.TxResult, error)
	ReadInferred(ctx context.Context, contract domain.ContractRef, function string, args []any) (clarity.Value, error)
	TxStatus(ctx context.Context, txID string) (domain.TxStatus, error)
}

// ContractHandler serves the generic contract call endpoints and
// transaction lookups.
type ContractHandler struct {
	gateway ContractGateway
	txs     domain.TransactionStore
	logger  *slog.Logger
}

// NewContractHandler creates a ContractHandler. txs may be nil.
func NewContractHandler(gateway ContractGateway, txs domain.TransactionStore, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{gateway: gateway, txs: txs, logger: logHandler(logger, "contract")}
}

// contractCallRequest carries untyped arguments. Numbers are kept as
// json.Number so large uints survive decoding.
type contractCallRequest struct {
	Contract string `json:"contract" validate:"required,contractid"`
	Function string `json:"function" validate:"required,max=128"`
	Args     []any  `json:"args"`
}

func decodeCallRequest(w http.ResponseWriter, r *http.Request) (contractCallRequest, domain.ContractRef, bool) {
	var req contractCallRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, domain.ContractRef{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, domain.ContractRef{}, false
	}
	if errs := validateStruct(&req); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": errs})
		return req, domain.ContractRef{}, false
	}
	ref, _ := domain.ParseContractRef(req.Contract)
	return req, ref, true
}

// Call submits a public function call.
// POST /api/contracts/call
func (h *ContractHandler) Call(w http.ResponseWriter, r *http.Request) {
	req, ref, ok := decodeCallRequest(w, r)
	if !ok {
		return
	}
	res, err := h.gateway.CallInferred(r.Context(), ref, req.Function, req.Args)
	if err != nil {
		writeServiceError(w, r, h.logger, "contract call", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// Read evaluates a read-only function and returns both the Clarity repr and
// a JSON rendering of the result.
// POST /api/contracts/read
func (h *ContractHandler) Read(w http.ResponseWriter, r *http.Request) {
	req, ref, ok := decodeCallRequest(w, r)
	if !ok {
		return
	}
	v, err := h.gateway.ReadInferred(r.Context(), ref, req.Function, req.Args)
	if err != nil {
		writeServiceError(w, r, h.logger, "contract read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repr":  v.String(),
		"value": clarity.ToNative(v),
	})
}

// GetTx returns the chain status of a transaction, merged with the stored
// record when there is one. A changed status is written back.
// GET /api/tx/{txid}
func (h *ContractHandler) GetTx(w http.ResponseWriter, r *http.Request) {
	txID := pathParam(r, "txid")
	status, err := h.gateway.TxStatus(r.Context(), txID)
	if err != nil {
		writeServiceError(w, r, h.logger, "tx status", err)
		return
	}
	resp := map[string]any{"txId": txID, "status": status}
	if h.txs == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rec, err := h.txs.GetByID(r.Context(), txID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		h.logger.WarnContext(r.Context(), "handler: tx record lookup failed", slog.String("error", err.Error()))
	default:
		if rec.Status != status {
			if err := h.txs.UpdateStatus(r.Context(), txID, status); err != nil {
				h.logger.WarnContext(r.Context(), "handler: tx status update failed", slog.String("error", err.Error()))
			}
			rec.Status = status
		}
		resp["record"] = rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTransactions returns the calls a sender submitted through this
// service, newest first.
// GET /api/transactions?sender=ST...&limit=50&offset=0
func (h *ContractHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.txs == nil {
		writeError(w, http.StatusServiceUnavailable, "transaction store not configured")
		return
	}
	sender := r.URL.Query().Get("sender")
	if sender == "" {
		writeError(w, http.StatusBadRequest, "sender query parameter required")
		return
	}
	txs, err := h.txs.ListBySender(r.Context(), sender, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
