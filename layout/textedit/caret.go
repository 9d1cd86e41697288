package textedit

import (
	"time"
	"unicode/utf8"
)

type State int

const (
	Idle State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "idle"
}

// BlinkInterval is the caret blink half-period.
const BlinkInterval = 530 * time.Millisecond

// Caret is the editing state of a session: which text element is being
// edited and where the caret is. It is not safe for concurrent use.
type Caret struct {
	state     State
	elementID string
	offset    int
	since     time.Time
}

// Begin starts editing elementID with the caret after the last character.
func (c *Caret) Begin(elementID, text string, now time.Time) {
	c.state = Editing
	c.elementID = elementID
	c.offset = utf8.RuneCountInString(text)
	c.since = now
}

// End returns to Idle.
func (c *Caret) End() {
	*c = Caret{}
}

func (c *Caret) State() State      { return c.state }
func (c *Caret) ElementID() string { return c.elementID }
func (c *Caret) Offset() int       { return c.offset }

// Editing reports whether elementID is the element being edited.
func (c *Caret) Editing(elementID string) bool {
	return c.state == Editing && c.elementID == elementID
}

// HandleKey applies ev to text, which must be the current text of the edited
// element. It returns the new text and whether the key was handled. In Idle
// nothing is handled.
func (c *Caret) HandleKey(text string, ev KeyEvent) (string, bool) {
	if c.state != Editing {
		return text, false
	}
	next, offset, ok := Apply(text, c.offset, ev)
	c.offset = offset
	return next, ok
}

// Sync clamps the caret after the edited text was replaced from outside.
func (c *Caret) Sync(text string) {
	if c.state != Editing {
		return
	}
	c.offset = clamp(c.offset, 0, utf8.RuneCountInString(text))
}

// Place moves the caret to offset, clamped to text.
func (c *Caret) Place(text string, offset int) {
	if c.state != Editing {
		return
	}
	c.offset = clamp(offset, 0, utf8.RuneCountInString(text))
}

// Visible reports whether the caret is drawn at now. It toggles every
// BlinkInterval starting visible when editing began.
func (c *Caret) Visible(now time.Time) bool {
	if c.state != Editing {
		return false
	}
	elapsed := now.Sub(c.since)
	if elapsed < 0 {
		return true
	}
	return (elapsed/BlinkInterval)%2 == 0
}
