package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
)

// MedicationHandler handles catalog reads
type MedicationHandler struct {
	service *service.MedicationService
}

// NewMedicationHandler creates a new medication handler
func NewMedicationHandler(svc *service.MedicationService) *MedicationHandler {
	return &MedicationHandler{service: svc}
}

// Get returns a medication with its lots. ?status= and ?available=true
// narrow the lot list.
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	filter := repository.LotFilter{Status: r.URL.Query().Get("status")}
	switch filter.Status {
	case "", repository.LotOK, repository.LotExpired, repository.LotBlocked:
	default:
		httputil.Error(w, r, errors.ValidationField("status", "must be one of: ok expired blocked"))
		return
	}
	if v := r.URL.Query().Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			httputil.Error(w, r, errors.ValidationField("available", "must be true or false"))
			return
		}
		filter.OnlyAvailable = available
	}

	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}
