package layout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certificate-server/core"
)

func TestRecordRoundTripPreservesIDsAndOrder(t *testing.T) {
	doc := NewDocument(Portrait, "data:image/png;base64,AAAA")
	text := NewText(10, 20, "Nome do Curso", 24, "Georgia")
	text.Width = ptr(300.0)
	text.TextAlign = AlignCenter
	img := NewImage(50, 50, "https://example.com/logo.png")
	img.Opacity = 0.5
	require.NoError(t, doc.Add(img))
	require.NoError(t, doc.Add(text))

	turma := "turma-1"
	rec, err := ToRecord(Meta{TemplateID: "tpl", Name: "Diploma", TurmaID: &turma}, doc)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, rec.SchemaVersion)
	assert.Equal(t, "portrait", rec.Orientation)

	meta, loaded, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "Diploma", meta.Name)
	assert.Equal(t, "turma-1", *meta.TurmaID)
	assert.Equal(t, ids(doc.Elements()), ids(loaded.Elements()))
	assert.Equal(t, doc.Elements(), loaded.Elements())

	again, err := ToRecord(meta, loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(rec.Elements), string(again.Elements))
}

func TestEncodeElementsWritesDiscriminator(t *testing.T) {
	text := textWithID("t")
	data, err := EncodeElements([]Element{text})
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "text", raw[0]["type"])
	assert.Equal(t, "t", raw[0]["id"])
	assert.NotContains(t, raw[0], "width")

	data, err = EncodeElements(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecodeLegacyRecordFillsDefaults(t *testing.T) {
	legacy := `[
		{"id":"a","type":"image","x":1,"y":2,"src":"s"},
		{"type":"text","x":3,"y":4,"text":"hi"}
	]`
	elems, err := DecodeElements(json.RawMessage(legacy), 0)
	require.NoError(t, err)
	require.Len(t, elems, 2)

	img := elems[0].(ImageElement)
	assert.Equal(t, 1.0, img.Opacity)
	assert.Equal(t, 100.0, img.Width)
	assert.Equal(t, 100.0, img.Height)

	text := elems[1].(TextElement)
	assert.Equal(t, 20.0, text.FontSize)
	assert.NotEmpty(t, text.ID)
}

func TestDecodeElementsErrors(t *testing.T) {
	_, err := DecodeElements(json.RawMessage(`[{"id":"a","type":"shape"}]`), 1)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = DecodeElements(json.RawMessage(`[{"type":"text","text":"x"}]`), 1)
	assert.Error(t, err)

	_, err = DecodeElements(json.RawMessage(`[{"id":"a","type":"text"},{"id":"a","type":"text"}]`), 1)
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = DecodeElements(json.RawMessage(`[]`), SchemaVersion+1)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)

	elems, err := DecodeElements(nil, 1)
	require.NoError(t, err)
	assert.Empty(t, elems)
}

func TestFromRecordRejectsBrokenElements(t *testing.T) {
	_, _, err := FromRecord(&core.Template{ID: "x", SchemaVersion: 1, Elements: json.RawMessage(`{`)})
	assert.Error(t, err)
}
