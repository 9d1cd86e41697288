package apiutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"certificate-server/core"
	"certificate-server/locks"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func RespondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// RespondDecodeError answers a body that failed Decode.
func RespondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
		return
	}
	logrus.WithError(err).Debug("Failed to decode request")
	RespondError(w, r, http.StatusBadRequest, "Invalid request body")
}

// RespondStoreError maps a store error to 404 or 500.
func RespondStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, what+" not found")
	case errors.Is(err, core.ErrInvalidID):
		RespondError(w, r, http.StatusBadRequest, "Invalid "+what+" id")
	case errors.Is(err, locks.ErrHeld):
		RespondError(w, r, http.StatusConflict, what+" is being saved, try again")
	default:
		logrus.WithError(err).Errorf("%s store operation failed", what)
		RespondError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// WriteFile sends data as a download. disposition is "inline" or
// "attachment".
func WriteFile(w http.ResponseWriter, contentType, disposition, filename string, data []byte) {
	WriteFileHeaders(w, contentType, disposition, filename)
	if _, err := w.Write(data); err != nil {
		logrus.WithError(err).Error("Failed to write response body")
	}
}

// WriteFileHeaders writes the headers of a file response. They are frozen
// afterwards.
func WriteFileHeaders(w http.ResponseWriter, contentType, disposition, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	w.WriteHeader(http.StatusOK)
}
