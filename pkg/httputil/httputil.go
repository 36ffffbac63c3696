package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/saludmunicipal/farmacia-backend/pkg/i18n"
)

// ErrorBody is the payload of every failed request
type ErrorBody struct {
	OK        bool              `json:"ok"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// JSON writes v as the response body
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusCreated, v)
}

// Error sends an error response localized to the request locale.
// Errors that are not AppErrors become a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.Retryable {
			w.Header().Set("Retry-After", "1")
		}
		JSON(w, appErr.StatusCode, ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Localize(r.Context()),
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
		})
		return
	}

	JSON(w, http.StatusInternalServerError, ErrorBody{
		Code:    errors.CodeInternal,
		Message: i18n.TFromContext(r.Context(), "errors.internal"),
	})
}

// DecodeJSON decodes the request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err == io.EOF {
			return errors.BadRequest(i18n.TFromContext(r.Context(), "errors.invalid_json"))
		}
		return errors.BadRequest(i18n.TFromContext(r.Context(), "errors.invalid_json")).WithCause(err)
	}
	return nil
}
