package editor

import (
	"time"

	"certificate-server/layout"
)

// View is the client-facing snapshot of a session.
type View struct {
	SessionID       string             `json:"session_id"`
	TemplateID      string             `json:"template_id,omitempty"`
	Name            string             `json:"name"`
	TurmaID         *string            `json:"turma_id,omitempty"`
	Orientation     layout.Orientation `json:"orientation"`
	Width           float64            `json:"width"`
	Height          float64            `json:"height"`
	BackgroundImage string             `json:"background_image,omitempty"`
	FontFamily      string             `json:"font_family"`
	Elements        []layout.Element   `json:"elements"`
	SelectedID      string             `json:"selected_id,omitempty"`
	Caret           *CaretView         `json:"caret,omitempty"`
	Saving          bool               `json:"saving"`
}

type CaretView struct {
	ElementID string `json:"element_id"`
	Offset    int    `json:"offset"`
	Visible   bool   `json:"visible"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := s.doc.Orientation.CanvasSize()
	v := View{
		SessionID:       s.ID,
		TemplateID:      s.meta.TemplateID,
		Name:            s.meta.Name,
		TurmaID:         s.meta.TurmaID,
		Orientation:     s.doc.Orientation,
		Width:           w,
		Height:          h,
		BackgroundImage: s.doc.BackgroundImage,
		FontFamily:      s.fontFamily,
		Elements:        s.doc.Elements(),
		SelectedID:      s.selected,
		Saving:          s.saving,
	}
	if v.Elements == nil {
		v.Elements = []layout.Element{}
	}
	if s.caret.ElementID() != "" {
		v.Caret = &CaretView{
			ElementID: s.caret.ElementID(),
			Offset:    s.caret.Offset(),
			Visible:   s.caret.Visible(s.m.now()),
		}
	}
	return v
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}
