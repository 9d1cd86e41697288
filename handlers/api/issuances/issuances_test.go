package issuances

import (
	"archive/zip"
	"bytes"
	"certificate-server/certificates"
	"certificate-server/core"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// mockIssuer knows a single template, "tpl-1".
type mockIssuer struct {
	issued    map[string]core.Issuance
	renderErr error
}

func newMockIssuer() *mockIssuer {
	return &mockIssuer{issued: make(map[string]core.Issuance)}
}

func (m *mockIssuer) checkTemplate(templateID string) error {
	if templateID != "tpl-1" {
		return fmt.Errorf("template with id %s: %w", templateID, core.ErrNotFound)
	}
	return nil
}

func (m *mockIssuer) Generate(ctx context.Context, templateID string, student certificates.Student) (*certificates.Certificate, error) {
	if err := m.checkTemplate(templateID); err != nil {
		return nil, err
	}
	if m.renderErr != nil {
		return nil, m.renderErr
	}
	issuance := core.Issuance{ID: "iss-" + student.ID, TemplateID: templateID, StudentID: student.ID, StudentName: student.Name}
	m.issued[issuance.ID] = issuance
	return &certificates.Certificate{
		Issuance: issuance,
		FileName: certificates.FileName(student.Name),
		PDF:      []byte("%PDF-" + student.Name),
	}, nil
}

func (m *mockIssuer) GenerateMissing(ctx context.Context, templateID string, students []certificates.Student, w io.Writer) (*certificates.BatchResult, error) {
	if err := m.checkTemplate(templateID); err != nil {
		return nil, err
	}
	result := &certificates.BatchResult{Generated: []string{}, Skipped: []string{}}
	archive := zip.NewWriter(w)
	for _, s := range students {
		if _, ok := m.issued["iss-"+s.ID]; ok {
			result.Skipped = append(result.Skipped, s.ID)
			continue
		}
		cert, _ := m.Generate(ctx, templateID, s)
		f, _ := archive.Create(cert.FileName)
		f.Write(cert.PDF)
		result.Generated = append(result.Generated, s.ID)
	}
	return result, archive.Close()
}

func (m *mockIssuer) List(ctx context.Context, templateID string) ([]core.Issuance, error) {
	if err := m.checkTemplate(templateID); err != nil {
		return nil, err
	}
	var out []core.Issuance
	for _, i := range m.issued {
		out = append(out, i)
	}
	return out, nil
}

func (m *mockIssuer) Revoke(ctx context.Context, issuanceID string) error {
	if _, ok := m.issued[issuanceID]; !ok {
		return fmt.Errorf("issuance with id %s: %w", issuanceID, core.ErrNotFound)
	}
	delete(m.issued, issuanceID)
	return nil
}

func newRequest(method, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, "/api/templates/x/certificates", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleGenerate_Success(t *testing.T) {
	issuer := newMockIssuer()
	req := newRequest(http.MethodPost, `{"id":"a1","nome_completo":"Ana Souza"}`, map[string]string{"id": "tpl-1"})
	rec := httptest.NewRecorder()
	HandleGenerate(issuer)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content type mismatch: got %q, want %q", got, "application/pdf")
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="certificado-Ana_Souza.pdf"` {
		t.Errorf("Disposition mismatch: got %q", got)
	}
	if got := rec.Header().Get("X-Issuance-Id"); got != "iss-a1" {
		t.Errorf("Issuance id mismatch: got %q, want %q", got, "iss-a1")
	}
}

func TestHandleGenerate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		templateID string
		body       string
		renderErr  error
		want       int
	}{
		{"invalid json", "tpl-1", "nope", nil, http.StatusBadRequest},
		{"missing id", "tpl-1", `{"nome_completo":"Ana"}`, nil, http.StatusUnprocessableEntity},
		{"blank name", "tpl-1", `{"id":"a1","nome_completo":"  "}`, nil, http.StatusUnprocessableEntity},
		{"unknown template", "tpl-2", `{"id":"a1","nome_completo":"Ana"}`, nil, http.StatusNotFound},
		{"render failure", "tpl-1", `{"id":"a1","nome_completo":"Ana"}`, fmt.Errorf("render certificate: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := newMockIssuer()
			issuer.renderErr = tt.renderErr
			rec := httptest.NewRecorder()
			HandleGenerate(issuer)(rec, newRequest(http.MethodPost, tt.body, map[string]string{"id": tt.templateID}))

			if rec.Code != tt.want {
				t.Errorf("Status code mismatch: got %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleGenerate_ValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleGenerate(newMockIssuer())(rec, newRequest(http.MethodPost, `{"id":"a1","nome_completo":" "}`, map[string]string{"id": "tpl-1"}))

	var response struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Fields["nome_completo"] != "this field cannot be blank" {
		t.Errorf("Field message mismatch: got %v", response.Fields)
	}
}

func TestHandleBatch(t *testing.T) {
	issuer := newMockIssuer()
	issuer.issued["iss-a1"] = core.Issuance{ID: "iss-a1", TemplateID: "tpl-1", StudentID: "a1"}

	body := `{"students":[{"id":"a1","nome_completo":"Ana"},{"id":"b2","nome_completo":"Bruno Lima"}]}`
	rec := httptest.NewRecorder()
	HandleBatch(issuer)(rec, newRequest(http.MethodPost, body, map[string]string{"id": "tpl-1"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("X-Certificates-Generated"); got != "1" {
		t.Errorf("Generated header mismatch: got %q, want %q", got, "1")
	}
	if got := rec.Header().Get("X-Certificates-Skipped"); got != "1" {
		t.Errorf("Skipped header mismatch: got %q, want %q", got, "1")
	}

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Body is not a ZIP archive: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "certificado-Bruno_Lima.pdf" {
		t.Errorf("Archive entries mismatch: got %d files", len(zr.File))
	}
}

func TestHandleBatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty roster", `{"students":[]}`},
		{"missing roster", `{}`},
		{"invalid student", `{"students":[{"id":"","nome_completo":"Ana"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleBatch(newMockIssuer())(rec, newRequest(http.MethodPost, tt.body, map[string]string{"id": "tpl-1"}))
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusUnprocessableEntity)
			}
		})
	}
}

func TestHandleListAndRevoke(t *testing.T) {
	issuer := newMockIssuer()
	issuer.issued["iss-a1"] = core.Issuance{ID: "iss-a1", TemplateID: "tpl-1", StudentID: "a1"}

	rec := httptest.NewRecorder()
	HandleList(issuer)(rec, newRequest(http.MethodGet, "", map[string]string{"id": "tpl-1"}))
	var listed []core.Issuance
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(listed) != 1 || listed[0].StudentID != "a1" {
		t.Errorf("Issuances mismatch: got %+v", listed)
	}

	rec = httptest.NewRecorder()
	HandleRevoke(issuer)(rec, newRequest(http.MethodDelete, "", map[string]string{"issuanceId": "iss-a1"}))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = httptest.NewRecorder()
	HandleList(issuer)(rec, newRequest(http.MethodGet, "", map[string]string{"id": "tpl-1"}))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Body mismatch: got %q, want %q", got, "[]")
	}

	rec = httptest.NewRecorder()
	HandleRevoke(issuer)(rec, newRequest(http.MethodDelete, "", map[string]string{"issuanceId": "iss-a1"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = httptest.NewRecorder()
	HandleList(issuer)(rec, newRequest(http.MethodGet, "", map[string]string{"id": "tpl-9"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}
