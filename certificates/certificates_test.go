package certificates

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certificate-server/core"
	"certificate-server/layout"
	"certificate-server/stores/memory"
)

// textRenderer "renders" a document as the texts of its text elements.
type textRenderer struct {
	failFor string
}

func (r textRenderer) PDF(ctx context.Context, doc *layout.Document) ([]byte, error) {
	var texts []string
	for _, el := range doc.Elements() {
		if t, ok := el.(layout.TextElement); ok {
			if r.failFor != "" && t.Text == r.failFor {
				return nil, errors.New("render failed")
			}
			texts = append(texts, t.Text)
		}
	}
	return []byte(strings.Join(texts, "|")), nil
}

func saveTemplate(t *testing.T, store core.TemplateStore) string {
	t.Helper()
	doc := layout.NewDocument(layout.Landscape, "")
	title := layout.NewText(100, 50, "Certificado", 32, "")
	name := layout.NewText(100, 150, layout.StudentNamePlaceholder, 28, "")
	course := layout.NewText(100, 200, "Curso de Formação", 20, "")
	require.NoError(t, doc.Add(title))
	require.NoError(t, doc.Add(name))
	require.NoError(t, doc.Add(course))
	require.NoError(t, doc.Add(layout.NewImage(10, 10, "")))

	turma := "turma-9"
	record, err := layout.ToRecord(layout.Meta{Name: "Diploma", TurmaID: &turma}, doc)
	require.NoError(t, err)
	id, err := store.Create(context.Background(), record)
	require.NoError(t, err)
	return id
}

func TestIsPlaceholder(t *testing.T) {
	testCases := []struct {
		text string
		want bool
	}{
		{"Nome do Aluno", true},
		{"Certificamos que o ALUNO", true},
		{"Aluna", false},
		{"Certificado", false},
		{"", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, IsPlaceholder(tc.text), tc.text)
	}
}

func TestPersonalizeKeepsOriginal(t *testing.T) {
	doc := layout.NewDocument(layout.Portrait, "")
	el := layout.NewText(1, 2, "Nome do Aluno", 28, "")
	require.NoError(t, doc.Add(el))

	out, err := Personalize(doc, "Ana Souza")
	require.NoError(t, err)

	got, _ := out.Get(el.ID)
	assert.Equal(t, "Ana Souza", got.(layout.TextElement).Text)
	assert.Equal(t, el.FontSize, got.(layout.TextElement).FontSize)
	orig, _ := doc.Get(el.ID)
	assert.Equal(t, "Nome do Aluno", orig.(layout.TextElement).Text)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "certificado-Ana_Maria_Souza.pdf", FileName(" Ana  Maria\tSouza "))
}

func TestGenerate(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id := saveTemplate(t, store)
	issuer := NewIssuer(store, store, textRenderer{})

	cert, err := issuer.Generate(ctx, id, Student{ID: "a1", Name: "Ana Souza"})
	require.NoError(t, err)
	assert.Equal(t, "Certificado|Ana Souza|Curso de Formação", string(cert.PDF))
	assert.Equal(t, "certificado-Ana_Souza.pdf", cert.FileName)
	assert.Equal(t, "turma-9", cert.Issuance.TurmaID)
	assert.NotEmpty(t, cert.Issuance.ID)

	again, err := issuer.Generate(ctx, id, Student{ID: "a1", Name: "Ana M. Souza", TurmaID: "turma-10"})
	require.NoError(t, err)
	assert.Equal(t, cert.Issuance.ID, again.Issuance.ID)

	list, err := issuer.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana M. Souza", list[0].StudentName)

	_, err = issuer.Generate(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", Student{ID: "a1", Name: "Ana"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGenerateMissing(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	id := saveTemplate(t, store)
	issuer := NewIssuer(store, store, textRenderer{failFor: "Caio"})

	_, err := issuer.Generate(ctx, id, Student{ID: "a1", Name: "Ana"})
	require.NoError(t, err)

	students := []Student{
		{ID: "a1", Name: "Ana"},
		{ID: "b2", Name: "Bruno Lima"},
		{ID: "c3", Name: "Caio"},
		{ID: "d4", Name: "Bruno Lima"},
		{ID: "b2", Name: "Bruno Lima"},
	}
	var buf bytes.Buffer
	result, err := issuer.GenerateMissing(ctx, id, students, &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2", "d4"}, result.Generated)
	assert.Equal(t, []string{"a1", "b2"}, result.Skipped)
	assert.Contains(t, result.Failed, "c3")

	archive, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"certificado-Bruno_Lima.pdf", "certificado-Bruno_Lima-d4.pdf"}, names)

	list, err := store.ListIssuances(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, issuer.Revoke(ctx, list[0].ID))
	assert.ErrorIs(t, issuer.Revoke(ctx, list[0].ID), core.ErrNotFound)
}
