package handler

import (
	"net/http"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file
const multipartMemory = 8 << 20

// InventoryHandler handles spreadsheet stock imports
type InventoryHandler struct {
	service  *service.ImportService
	maxBytes int64
	logger   *logger.Logger
}

// NewInventoryHandler creates a new inventory handler. Uploads larger than
// maxBytes are rejected.
func NewInventoryHandler(svc *service.ImportService, maxBytes int64, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service:  svc,
		maxBytes: maxBytes,
		logger:   log,
	}
}

// Import loads the multipart "file" field, an xlsx or csv stock sheet
func (h *InventoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		httputil.Error(w, r, fileTooLarge())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, r, fileTooLarge().WithCause(err))
			return
		}
		httputil.Error(w, r, errors.BadRequest("file required").WithMessageKey("errors.file_required").WithCause(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, r, errors.BadRequest("file required").WithMessageKey("errors.file_required").WithCause(err))
		return
	}
	defer file.Close()

	result, err := h.service.ImportFile(r.Context(), file, header.Filename)
	if err != nil {
		h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("inventory import rejected")
		httputil.Error(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

func fileTooLarge() *errors.AppError {
	appErr := errors.BadRequest("file too large").WithMessageKey("errors.file_too_large")
	appErr.StatusCode = http.StatusRequestEntityTooLarge
	return appErr
}
