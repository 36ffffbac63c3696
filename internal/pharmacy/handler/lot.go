package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
)

// LotHandler handles lot reads and quarantine
type LotHandler struct {
	service *service.LotService
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc *service.LotService) *LotHandler {
	return &LotHandler{service: svc}
}

func lotID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ValidationField("id", "must be a positive integer")
	}
	return id, nil
}

// Get returns a lot
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := lotID(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	lot, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Block quarantines a lot
func (h *LotHandler) Block(w http.ResponseWriter, r *http.Request) {
	id, err := lotID(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	lot, err := h.service.Block(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Unblock releases a quarantined lot
func (h *LotHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	id, err := lotID(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	lot, err := h.service.Unblock(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}
