package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/report"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// DispenseHandler handles sale endpoints
type DispenseHandler struct {
	service *service.DispenseService
	voucher *report.Voucher
	logger  *logger.Logger
}

// NewDispenseHandler creates a new dispense handler
func NewDispenseHandler(svc *service.DispenseService, voucher *report.Voucher, log *logger.Logger) *DispenseHandler {
	return &DispenseHandler{
		service: svc,
		voucher: voucher,
		logger:  log,
	}
}

// Create records a sale
func (h *DispenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.DispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.service.Record(r.Context(), req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.Created(w, result)
}

// Get returns a sale with its lines and lot allocations
func (h *DispenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// Voucher renders the printable voucher of a sale
func (h *DispenseHandler) Voucher(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.voucher.Render(r.Context(), &buf, detail.Dispense, detail.Lines); err != nil {
		h.logger.Error().Err(err).Str("dispense_id", detail.ID).Msg("failed to render voucher")
		httputil.Error(w, r, errors.Internal("failed to render voucher").WithCause(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "voucher-"+detail.ID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
