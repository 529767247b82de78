package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecotrace/internal/platform/middleware"
	"ecotrace/internal/recycling"
	"ecotrace/pkg/domainerr"
)

type RecyclingService interface {
	Submit(ctx context.Context, deviceLedgerID int64, weightGrams float64, components, recyclerWallet string) (*recycling.Report, error)
	Verify(ctx context.Context, reportLedgerID int64, regulatorWallet string) (*recycling.VerifyResult, error)
	Get(ctx context.Context, reportLedgerID int64) (*recycling.Report, error)
	ListByRecycler(ctx context.Context, recyclerWallet string) ([]*recycling.Report, error)
}

type RecyclingHandler struct {
	recycling RecyclingService
}

func NewRecyclingHandler(rec RecyclingService) *RecyclingHandler {
	return &RecyclingHandler{recycling: rec}
}

func (h *RecyclingHandler) Register(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/", h.handleSubmit)
		r.Get("/", h.handleListMine)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/verify", h.handleVerify)
	})
}

type submitReportRequest struct {
	DeviceLedgerID int64   `json:"deviceLedgerId"`
	WeightGrams    float64 `json:"weightGrams"`
	Components     string  `json:"components"`
}

func (h *RecyclingHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "invalid request body"))
		return
	}
	if req.DeviceLedgerID <= 0 {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "deviceLedgerId is required"))
		return
	}
	if req.WeightGrams <= 0 {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "weightGrams must be positive"))
		return
	}

	report, err := h.recycling.Submit(r.Context(), req.DeviceLedgerID, req.WeightGrams, req.Components, middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *RecyclingHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	reports, err := h.recycling.ListByRecycler(r.Context(), middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*recycling.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *RecyclingHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := h.recycling.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *RecyclingHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.recycling.Verify(r.Context(), id, middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
