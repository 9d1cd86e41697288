package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certificate-server/core"
)

// SchemaVersion is the version of the element encoding written by
// EncodeElements. Records without a version are treated as version 0.
const SchemaVersion = 1

var ErrUnsupportedSchema = errors.New("unsupported schema version")

func (t TextElement) MarshalJSON() ([]byte, error) {
	type plain TextElement
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindText, plain(t)})
}

func (img ImageElement) MarshalJSON() ([]byte, error) {
	type plain ImageElement
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindImage, plain(img)})
}

// EncodeElements writes elems as a JSON array in z-order.
func EncodeElements(elems []Element) (json.RawMessage, error) {
	if elems == nil {
		elems = []Element{}
	}
	data, err := json.Marshal(elems)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	return data, nil
}

// elementHeader carries the fields needed to dispatch on the variant and to fill in
// defaults for legacy records.
type elementHeader struct {
	Type     Kind     `json:"type"`
	ID       string   `json:"id"`
	FontSize *float64 `json:"fontSize"`
	Opacity  *float64 `json:"opacity"`
	Width    *float64 `json:"width"`
	Height   *float64 `json:"height"`
}

// DecodeElements reads an element array written with the given schema
// version. Version 0 records are migrated: missing font sizes, opacities,
// image sizes and ids are filled in with the factory defaults.
func DecodeElements(data json.RawMessage, version int) ([]Element, error) {
	if version < 0 || version > SchemaVersion {
		return nil, fmt.Errorf("decode elements: version %d: %w", version, ErrUnsupportedSchema)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Element{}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}

	legacy := version == 0
	elems := make([]Element, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, raw := range raws {
		var p elementHeader
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode element %d: %w", i, err)
		}

		var el Element
		switch p.Type {
		case KindText:
			var t TextElement
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, fmt.Errorf("decode text element %d: %w", i, err)
			}
			if legacy && p.FontSize == nil {
				t.FontSize = DefaultFontSize
			}
			el = t
		case KindImage:
			var img ImageElement
			if err := json.Unmarshal(raw, &img); err != nil {
				return nil, fmt.Errorf("decode image element %d: %w", i, err)
			}
			if legacy {
				if p.Opacity == nil {
					img.Opacity = 1
				}
				if p.Width == nil {
					img.Width = DefaultImageSize
				}
				if p.Height == nil {
					img.Height = DefaultImageSize
				}
			}
			el = img
		default:
			return nil, fmt.Errorf("decode element %d: %q: %w", i, p.Type, ErrUnknownKind)
		}

		if p.ID == "" {
			if !legacy {
				return nil, fmt.Errorf("decode element %d: missing id", i)
			}
			el = withID(el, newID())
		}
		if _, dup := seen[el.ElementID()]; dup {
			return nil, fmt.Errorf("decode element %d: %s: %w", i, el.ElementID(), ErrDuplicateID)
		}
		seen[el.ElementID()] = struct{}{}
		elems = append(elems, el)
	}
	return elems, nil
}

func withID(e Element, id string) Element {
	switch el := e.(type) {
	case TextElement:
		el.ID = id
		return el
	case ImageElement:
		el.ID = id
		return el
	}
	return e
}

// Meta is the template metadata that travels with a document.
type Meta struct {
	TemplateID string
	Name       string
	TurmaID    *string
	Thumbnail  string
	CreatedAt  time.Time
}

// ToRecord converts a document into the persisted template shape. The whole
// element list is always written.
func ToRecord(meta Meta, doc *Document) (*core.Template, error) {
	elems, err := EncodeElements(doc.elements)
	if err != nil {
		return nil, err
	}
	var turma *string
	if meta.TurmaID != nil {
		v := *meta.TurmaID
		turma = &v
	}
	return &core.Template{
		ID:              meta.TemplateID,
		Name:            meta.Name,
		Thumbnail:       meta.Thumbnail,
		TurmaID:         turma,
		Orientation:     string(doc.Orientation),
		BackgroundImage: doc.BackgroundImage,
		SchemaVersion:   SchemaVersion,
		Elements:        elems,
		CreatedAt:       meta.CreatedAt,
	}, nil
}

// FromRecord rebuilds the metadata and document of a stored template. Element
// ids are preserved so a load followed by a save is idempotent.
func FromRecord(t *core.Template) (Meta, *Document, error) {
	elems, err := DecodeElements(t.Elements, t.SchemaVersion)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("template %s: %w", t.ID, err)
	}
	doc := NewDocument(Orientation(t.Orientation), t.BackgroundImage)
	doc.elements = elems

	meta := Meta{
		TemplateID: t.ID,
		Name:       t.Name,
		Thumbnail:  t.Thumbnail,
		CreatedAt:  t.CreatedAt,
	}
	if t.TurmaID != nil {
		v := *t.TurmaID
		meta.TurmaID = &v
	}
	return meta, doc, nil
}
