// Package textedit implements in-canvas editing of a text element: a caret
// that moves through the text by character offset, keystroke handling, click
// to caret placement and the line layout shared with the renderer.
package textedit

import (
	"unicode"
	"unicode/utf8"
)

type Key int

const (
	KeyOther Key = iota
	KeyChar
	KeyBackspace
	KeyDelete
	KeyEnter
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
)

type Modifiers struct {
	Shift bool `json:"shift,omitempty"`
	Ctrl  bool `json:"ctrl,omitempty"`
	Alt   bool `json:"alt,omitempty"`
	Meta  bool `json:"meta,omitempty"`
}

type KeyEvent struct {
	Key  Key
	Char rune
	Mods Modifiers
}

var namedKeys = map[string]Key{
	"Backspace":  KeyBackspace,
	"Delete":     KeyDelete,
	"Enter":      KeyEnter,
	"ArrowLeft":  KeyLeft,
	"ArrowRight": KeyRight,
	"Home":       KeyHome,
	"End":        KeyEnd,
}

// ParseKey maps a DOM key name ("Backspace", "ArrowLeft", "a", ...) to an
// event. A single printable character becomes KeyChar.
func ParseKey(name string, mods Modifiers) KeyEvent {
	if k, ok := namedKeys[name]; ok {
		return KeyEvent{Key: k, Mods: mods}
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if unicode.IsPrint(r) {
			return KeyEvent{Key: KeyChar, Char: r, Mods: mods}
		}
	}
	return KeyEvent{Key: KeyOther, Mods: mods}
}

// Apply performs one keystroke on text with the caret at offset caret,
// counted in characters. It reports whether the key is an editing key; keys
// it does not handle leave text and caret as they are.
func Apply(text string, caret int, ev KeyEvent) (string, int, bool) {
	runes := []rune(text)
	n := len(runes)
	c := clamp(caret, 0, n)

	switch ev.Key {
	case KeyBackspace:
		if c > 0 {
			runes = append(runes[:c-1:c-1], runes[c:]...)
			c--
		}
	case KeyDelete:
		if c < n {
			runes = append(runes[:c:c], runes[c+1:]...)
		}
	case KeyEnter:
		runes, c = insert(runes, c, '\n')
	case KeyLeft:
		c = max(c-1, 0)
	case KeyRight:
		c = min(c+1, n)
	case KeyHome:
		for c > 0 && runes[c-1] != '\n' {
			c--
		}
	case KeyEnd:
		for c < n && runes[c] != '\n' {
			c++
		}
	case KeyChar:
		if ev.Mods.Ctrl || ev.Mods.Alt || ev.Mods.Meta || !unicode.IsPrint(ev.Char) {
			return text, c, false
		}
		runes, c = insert(runes, c, ev.Char)
	default:
		return text, c, false
	}
	return string(runes), c, true
}

func insert(runes []rune, at int, r rune) ([]rune, int) {
	out := make([]rune, 0, len(runes)+1)
	out = append(out, runes[:at]...)
	out = append(out, r)
	out = append(out, runes[at:]...)
	return out, at + 1
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
