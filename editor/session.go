package editor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"certificate-server/layout"
	"certificate-server/layout/textedit"
)

var (
	ErrNameRequired    = errors.New("template name is required")
	ErrSaveInFlight    = errors.New("a save of this template is already in progress")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one editing context over a document. All mutations take the
// session mutex, so they apply one at a time in the order they arrive.
type Session struct {
	ID string

	mu         sync.Mutex
	m          *Manager
	meta       layout.Meta
	doc        *layout.Document
	selected   string
	caret      textedit.Caret
	fontFamily string
	saving     bool
	lastActive time.Time
}

func (s *Session) touch() {
	s.lastActive = s.m.now()
}

// selectLocked makes id the selection. Selecting a text element starts
// editing it with the caret at the end; anything else ends editing.
func (s *Session) selectLocked(id string) error {
	if id == "" {
		s.selected = ""
		s.caret.End()
		return nil
	}
	el, ok := s.doc.Get(id)
	if !ok {
		return fmt.Errorf("select %s: %w", id, layout.ErrElementMissing)
	}
	if s.selected == id {
		return nil
	}
	s.selected = id
	if t, isText := el.(layout.TextElement); isText {
		s.caret.Begin(id, t.Text, s.m.now())
	} else {
		s.caret.End()
	}
	return nil
}

// AddPreset appends a toolbar element on top and selects it. The session
// font applies to text presets and src to the image preset.
func (s *Session) AddPreset(p layout.Preset, src string) (string, error) {
	el, err := layout.FromPreset(p, s.FontFamily(), src)
	if err != nil {
		return "", err
	}
	return el.ElementID(), s.Add(el)
}

// Add appends el on top and selects it.
func (s *Session) Add(el layout.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.doc.Add(el); err != nil {
		return err
	}
	return s.selectLocked(el.ElementID())
}

// Select changes the selection; an empty id clears it.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.selectLocked(id)
}

// transform runs fn on element id, selecting it first. A rejected transform
// leaves the element untouched and reports applied=false.
func (s *Session) transform(id string, fn func(layout.Element) (layout.Element, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	el, ok := s.doc.Get(id)
	if !ok {
		return false, fmt.Errorf("transform %s: %w", id, layout.ErrElementMissing)
	}
	if err := s.selectLocked(id); err != nil {
		return false, err
	}
	next, err := fn(el)
	if errors.Is(err, layout.ErrRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.doc.Update(next); err != nil {
		return false, err
	}
	if t, isText := next.(layout.TextElement); isText && s.caret.Editing(id) {
		s.caret.Sync(t.Text)
	}
	return true, nil
}

// Move places element id at the drag-end position.
func (s *Session) Move(id string, x, y float64) (bool, error) {
	return s.transform(id, func(el layout.Element) (layout.Element, error) {
		return layout.Move(el, x, y)
	})
}

// Resize applies a resize gesture with scale factors relative to the stored
// size.
func (s *Session) Resize(id string, x, y, sx, sy float64) (bool, error) {
	return s.transform(id, func(el layout.Element) (layout.Element, error) {
		return layout.Resize(el, x, y, sx, sy)
	})
}

// Style is a partial update for either element variant. Only the part that
// matches the element kind is used.
type Style struct {
	Text  *layout.TextStyle
	Image *layout.ImageStyle
}

func (s *Session) UpdateStyle(id string, style Style) (bool, error) {
	return s.transform(id, func(el layout.Element) (layout.Element, error) {
		switch e := el.(type) {
		case layout.TextElement:
			if style.Text == nil {
				return el, layout.ErrRejected
			}
			return style.Text.Apply(e)
		case layout.ImageElement:
			if style.Image == nil {
				return el, layout.ErrRejected
			}
			return style.Image.Apply(e)
		}
		return el, layout.ErrUnknownKind
	})
}

// BringToFront moves the selection one step towards the top.
func (s *Session) BringToFront() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.selected != "" && s.doc.BringToFront(s.selected)
}

// SendToBack moves the selection one step towards the bottom.
func (s *Session) SendToBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.selected != "" && s.doc.SendToBack(s.selected)
}

// DeleteSelected removes the selected element and clears the selection.
func (s *Session) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.selected == "" {
		return false
	}
	if err := s.doc.Delete(s.selected); err != nil {
		return false
	}
	s.selected = ""
	s.caret.End()
	return true
}

// HandleKey feeds a keystroke to the text being edited. It reports whether
// the key was consumed.
func (s *Session) HandleKey(ev textedit.KeyEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.caret.State() != textedit.Editing {
		return false
	}
	el, ok := s.doc.Get(s.caret.ElementID())
	t, isText := el.(layout.TextElement)
	if !ok || !isText {
		s.caret.End()
		return false
	}
	text, handled := s.caret.HandleKey(t.Text, ev)
	if !handled {
		return false
	}
	if text != t.Text {
		t.Text = text
		if err := s.doc.Update(t); err != nil {
			return false
		}
	}
	return true
}

// Click handles a pointer press at canvas point (x, y). The topmost element
// under the point becomes the selection; on a text element the caret moves
// to the nearest character boundary. A click on empty canvas clears the
// selection.
func (s *Session) Click(x, y float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	hit := s.hitTest(x, y)
	if hit == nil {
		s.selectLocked("")
		return ""
	}
	id := hit.ElementID()
	s.selectLocked(id)
	if t, isText := hit.(layout.TextElement); isText {
		s.caret.Place(t.Text, textedit.CaretAt(t, s.m.measurer, x, y))
	}
	return id
}

func (s *Session) hitTest(x, y float64) layout.Element {
	elems := s.doc.Elements()
	for i := len(elems) - 1; i >= 0; i-- {
		var ex, ey, w, h float64
		switch e := elems[i].(type) {
		case layout.TextElement:
			ex, ey = e.X, e.Y
			w, h = textedit.Size(e, s.m.measurer)
		case layout.ImageElement:
			ex, ey, w, h = e.X, e.Y, e.Width, e.Height
		default:
			continue
		}
		if x >= ex && x <= ex+w && y >= ey && y <= ey+h {
			return elems[i]
		}
	}
	return nil
}

// Settings is a partial update of the template metadata and canvas.
type Settings struct {
	Name            *string
	TurmaID         *string
	ClearTurma      bool
	Orientation     *layout.Orientation
	BackgroundImage *string
	FontFamily      *string
}

// UpdateSettings applies settings. An unknown orientation rejects the whole
// update.
func (s *Session) UpdateSettings(settings Settings) (bool, error) {
	if settings.Orientation != nil && !settings.Orientation.Valid() {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if settings.Name != nil {
		s.meta.Name = *settings.Name
	}
	if settings.ClearTurma {
		s.meta.TurmaID = nil
	} else if settings.TurmaID != nil {
		v := *settings.TurmaID
		s.meta.TurmaID = &v
	}
	if settings.Orientation != nil {
		s.doc.Orientation = *settings.Orientation
	}
	if settings.BackgroundImage != nil {
		s.doc.BackgroundImage = *settings.BackgroundImage
	}
	if settings.FontFamily != nil {
		s.fontFamily = *settings.FontFamily
	}
	return true, nil
}

func (s *Session) FontFamily() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fontFamily
}

// Document returns a copy of the current document and its metadata.
func (s *Session) Document() (layout.Meta, *layout.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, s.doc.Clone()
}
