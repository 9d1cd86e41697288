package issuances

import (
	"bytes"
	"certificate-server/certificates"
	"certificate-server/core"
	"certificate-server/handlers/api/apiutil"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	BatchRequest struct {
		Students []certificates.Student `json:"students" validate:"required,min=1,max=1000,dive"`
	}

	Issuer interface {
		Generate(ctx context.Context, templateID string, student certificates.Student) (*certificates.Certificate, error)
		GenerateMissing(ctx context.Context, templateID string, students []certificates.Student, w io.Writer) (*certificates.BatchResult, error)
		List(ctx context.Context, templateID string) ([]core.Issuance, error)
		Revoke(ctx context.Context, issuanceID string) error
	}
)

// HandleList lists the certificates issued from a template
func HandleList(issuer Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "id")

		issued, err := issuer.List(r.Context(), templateID)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}
		if issued == nil {
			issued = []core.Issuance{}
		}
		render.JSON(w, r, issued)
	}
}

// HandleGenerate issues one certificate and answers with its PDF
func HandleGenerate(issuer Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "id")

		var student certificates.Student
		if err := apiutil.Decode(r, &student); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		cert, err := issuer.Generate(r.Context(), templateID, student)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}

		w.Header().Set("X-Issuance-Id", cert.Issuance.ID)
		apiutil.WriteFile(w, "application/pdf", "attachment", cert.FileName, cert.PDF)
	}
}

// HandleBatch issues certificates for the students that have none yet and
// answers with a ZIP archive. The per-student outcome travels in headers.
func HandleBatch(issuer Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "id")

		var req BatchRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		var archive bytes.Buffer
		result, err := issuer.GenerateMissing(r.Context(), templateID, req.Students, &archive)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}

		logrus.WithFields(logrus.Fields{
			"template_id": templateID,
			"requested":   len(req.Students),
			"generated":   len(result.Generated),
		}).Debug("Certificate batch served")

		w.Header().Set("X-Certificates-Generated", strconv.Itoa(len(result.Generated)))
		w.Header().Set("X-Certificates-Skipped", strconv.Itoa(len(result.Skipped)))
		w.Header().Set("X-Certificates-Failed", strconv.Itoa(len(result.Failed)))
		apiutil.WriteFile(w, "application/zip", "attachment", "certificados.zip", archive.Bytes())
	}
}

func HandleRevoke(issuer Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuanceID := chi.URLParam(r, "issuanceId")

		if err := issuer.Revoke(r.Context(), issuanceID); err != nil {
			apiutil.RespondStoreError(w, r, err, "Certificate")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
