package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecotrace/internal/device"
	"ecotrace/internal/ledger/txgen"
	"ecotrace/internal/platform/middleware"
	"ecotrace/pkg/domainerr"
)

type DeviceService interface {
	Register(ctx context.Context, spec device.Specification, rfidTag, manufacturerWallet string) (*device.Device, error)
	Transfer(ctx context.Context, ledgerID int64, newOwnerWallet, callerWallet string) (*device.TransferResult, error)
	UpdateStatus(ctx context.Context, ledgerID int64, status device.Status, callerWallet string) (*device.UpdateResult, error)
	Get(ctx context.Context, ledgerID int64) (*device.Device, error)
	History(ctx context.Context, ledgerID int64) ([]string, error)
	ListByOwner(ctx context.Context, ownerWallet string, includeRecycled bool) ([]*device.Device, error)
}

type DeviceHandler struct {
	devices DeviceService
}

func NewDeviceHandler(devices DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) Register(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleListMine)
		r.Get("/fees", h.handleFees)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/history", h.handleHistory)
		r.Post("/{id}/transfer", h.handleTransfer)
		r.Post("/{id}/status", h.handleUpdateStatus)
	})
}

type registerDeviceRequest struct {
	Specification device.Specification `json:"specification"`
	RFIDTag       string               `json:"rfidTag"`
}

func (h *DeviceHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Specification.Category == "" || req.Specification.Model == "" {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "specification category and model are required"))
		return
	}

	d, err := h.devices.Register(r.Context(), req.Specification, req.RFIDTag, middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DeviceHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	includeRecycled := r.URL.Query().Get("includeRecycled") == "true"
	list, err := h.devices.ListByOwner(r.Context(), middleware.GetWallet(r.Context()), includeRecycled)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*device.Device{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleFees previews the transaction fee for a ledger operation.
func (h *DeviceHandler) handleFees(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, txgen.EstimateGas())
}

func (h *DeviceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.devices.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DeviceHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	owners, err := h.devices.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledgerId": id, "owners": owners})
}

type transferRequest struct {
	ToWallet string `json:"toWallet"`
}

func (h *DeviceHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToWallet == "" {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "toWallet is required"))
		return
	}

	res, err := h.devices.Transfer(r.Context(), id, req.ToWallet, middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *DeviceHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := device.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.devices.UpdateStatus(r.Context(), id, status, middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
