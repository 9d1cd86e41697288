package core

import (
	"context"
	"encoding/json"
	"time"
)

const (
	OrientationLandscape = "landscape"
	OrientationPortrait  = "portrait"
)

type (
	// Template is the persisted form of a certificate layout. Elements holds the
	// encoded element list; its shape is described by SchemaVersion.
	Template struct {
		ID              string          `json:"id"`
		Name            string          `json:"name"`
		Thumbnail       string          `json:"thumbnail,omitempty"`
		TurmaID         *string         `json:"turma_id"`
		Orientation     string          `json:"orientation"`
		BackgroundImage string          `json:"background_image,omitempty"`
		SchemaVersion   int             `json:"schema_version"`
		Elements        json.RawMessage `json:"elements"`
		CreatedAt       time.Time       `json:"created_at"`
		UpdatedAt       time.Time       `json:"updated_at"`
	}

	// TemplateStore persists certificate templates. Update replaces the whole
	// record, element list included.
	TemplateStore interface {
		// List returns all templates, newest first.
		List(ctx context.Context) ([]*Template, error)
		Get(ctx context.Context, id string) (*Template, error)
		// Create stores a new template and returns its assigned id.
		Create(ctx context.Context, template *Template) (string, error)
		Update(ctx context.Context, template *Template) error
		Delete(ctx context.Context, id string) error
	}
)

// Clone returns a deep copy of t.
func (t *Template) Clone() *Template {
	c := *t
	if t.TurmaID != nil {
		turma := *t.TurmaID
		c.TurmaID = &turma
	}
	if t.Elements != nil {
		c.Elements = append(json.RawMessage(nil), t.Elements...)
	}
	return &c
}
