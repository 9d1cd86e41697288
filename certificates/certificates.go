// Package certificates turns a saved template into per-student PDF
// certificates and keeps track of who already received one.
package certificates

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"certificate-server/core"
	"certificate-server/layout"
)

// Student is a roster entry. The roster itself lives elsewhere; only the id,
// the full name and the class are needed here.
type Student struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"nome_completo" validate:"required,notblank"`
	TurmaID string `json:"turma_id,omitempty"`
}

// Renderer renders a document into a one-page PDF.
type Renderer interface {
	PDF(ctx context.Context, doc *layout.Document) ([]byte, error)
}

type Certificate struct {
	Issuance core.Issuance
	FileName string
	PDF      []byte
}

type Issuer struct {
	templates core.TemplateStore
	issuances core.IssuanceStore
	renderer  Renderer
}

func NewIssuer(templates core.TemplateStore, issuances core.IssuanceStore, renderer Renderer) *Issuer {
	return &Issuer{templates: templates, issuances: issuances, renderer: renderer}
}

// IsPlaceholder reports whether a text element stands for the student name:
// it mentions the student name preset or the word "aluno" in any case.
func IsPlaceholder(text string) bool {
	return strings.Contains(text, layout.StudentNamePlaceholder) ||
		strings.Contains(strings.ToLower(text), "aluno")
}

// Personalize returns a copy of doc where every placeholder text element
// reads name. Positions, styles and ids are kept.
func Personalize(doc *layout.Document, name string) (*layout.Document, error) {
	out := doc.Clone()
	err := out.Map(func(el layout.Element) layout.Element {
		if t, ok := el.(layout.TextElement); ok && IsPlaceholder(t.Text) {
			t.Text = name
			return t
		}
		return el
	})
	return out, err
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName is the download name of a student's certificate.
func FileName(studentName string) string {
	return "certificado-" + whitespace.ReplaceAllString(strings.TrimSpace(studentName), "_") + ".pdf"
}

type loaded struct {
	template *core.Template
	doc      *layout.Document
}

func (i *Issuer) load(ctx context.Context, templateID string) (*loaded, error) {
	t, err := i.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	_, doc, err := layout.FromRecord(t)
	if err != nil {
		return nil, err
	}
	return &loaded{template: t, doc: doc}, nil
}

// Generate renders the certificate of student from a saved template and
// records the issuance. Issuing again refreshes the existing record.
func (i *Issuer) Generate(ctx context.Context, templateID string, student Student) (*Certificate, error) {
	l, err := i.load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return i.generate(ctx, l, student)
}

func (i *Issuer) generate(ctx context.Context, l *loaded, student Student) (*Certificate, error) {
	log := logrus.WithFields(logrus.Fields{
		"template_id": l.template.ID,
		"aluno_id":    student.ID,
	})

	doc, err := Personalize(l.doc, student.Name)
	if err != nil {
		return nil, err
	}
	pdf, err := i.renderer.PDF(ctx, doc)
	if err != nil {
		log.WithError(err).Error("Failed to render certificate")
		return nil, fmt.Errorf("render certificate: %w", err)
	}

	issuance := core.Issuance{
		TemplateID:  l.template.ID,
		StudentID:   student.ID,
		TurmaID:     student.TurmaID,
		StudentName: student.Name,
	}
	if issuance.TurmaID == "" && l.template.TurmaID != nil {
		issuance.TurmaID = *l.template.TurmaID
	}
	if err := i.issuances.RecordIssuance(ctx, &issuance); err != nil {
		log.WithError(err).Error("Failed to record issuance")
		return nil, err
	}

	log.Info("Certificate generated successfully")
	return &Certificate{Issuance: issuance, FileName: FileName(student.Name), PDF: pdf}, nil
}

// BatchResult lists what a batch run did per student id.
type BatchResult struct {
	Generated []string          `json:"generated"`
	Skipped   []string          `json:"skipped"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// GenerateMissing issues certificates, one after the other, for the students
// that do not have one for the template yet and writes them into a ZIP
// archive on w. A failing student is reported in the result and does not
// stop the batch.
func (i *Issuer) GenerateMissing(ctx context.Context, templateID string, students []Student, w io.Writer) (*BatchResult, error) {
	l, err := i.load(ctx, templateID)
	if err != nil {
		return nil, err
	}
	existing, err := i.issuances.ListIssuances(ctx, templateID)
	if err != nil {
		return nil, err
	}
	issued := make(map[string]bool, len(existing))
	for _, e := range existing {
		issued[e.StudentID] = true
	}

	result := &BatchResult{Generated: []string{}, Skipped: []string{}}
	names := make(map[string]bool)
	archive := zip.NewWriter(w)
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			archive.Close()
			return result, err
		}
		if issued[student.ID] {
			result.Skipped = append(result.Skipped, student.ID)
			continue
		}
		issued[student.ID] = true

		cert, err := i.generate(ctx, l, student)
		if err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[student.ID] = err.Error()
			continue
		}

		name := cert.FileName
		if names[name] {
			name = strings.TrimSuffix(name, ".pdf") + "-" + student.ID + ".pdf"
		}
		names[name] = true
		f, err := archive.Create(name)
		if err != nil {
			return result, fmt.Errorf("write archive: %w", err)
		}
		if _, err := f.Write(cert.PDF); err != nil {
			return result, fmt.Errorf("write archive: %w", err)
		}
		result.Generated = append(result.Generated, student.ID)
	}
	if err := archive.Close(); err != nil {
		return result, fmt.Errorf("write archive: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"template_id": templateID,
		"generated":   len(result.Generated),
		"skipped":     len(result.Skipped),
		"failed":      len(result.Failed),
	}).Info("Certificate batch finished")
	return result, nil
}

func (i *Issuer) List(ctx context.Context, templateID string) ([]core.Issuance, error) {
	if _, err := i.templates.Get(ctx, templateID); err != nil {
		return nil, err
	}
	return i.issuances.ListIssuances(ctx, templateID)
}

// Revoke deletes an issuance so the student is included in the next batch.
func (i *Issuer) Revoke(ctx context.Context, issuanceID string) error {
	return i.issuances.DeleteIssuance(ctx, issuanceID)
}
