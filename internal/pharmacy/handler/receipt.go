package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
)

// ReceiptHandler handles goods receipt endpoints
type ReceiptHandler struct {
	service *service.ReceiptService
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(svc *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{service: svc}
}

// Create records a manual goods receipt
func (h *ReceiptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ReceiptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.service.ReceiveManual(r.Context(), req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.Created(w, result)
}

// Get returns a receipt with its lines
func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}
