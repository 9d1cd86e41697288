package layout

import (
	"errors"
	"math"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

type (
	FontWeight     string
	FontStyle      string
	TextDecoration string
	TextAlign      string
)

// The empty value of each style enum means "unset" and renders like the
// normal/none/left value.
const (
	FontWeightNormal FontWeight = "normal"
	FontWeightBold   FontWeight = "bold"

	FontStyleNormal FontStyle = "normal"
	FontStyleItalic FontStyle = "italic"

	DecorationNone      TextDecoration = "none"
	DecorationUnderline TextDecoration = "underline"

	AlignLeft    TextAlign = "left"
	AlignCenter  TextAlign = "center"
	AlignRight   TextAlign = "right"
	AlignJustify TextAlign = "justify"
)

var (
	ErrRejected       = errors.New("transform rejected")
	ErrUnknownKind    = errors.New("unknown element type")
	ErrDuplicateID    = errors.New("duplicate element id")
	ErrElementMissing = errors.New("element not found")
	ErrKindChanged    = errors.New("element type cannot change")
)

// Element is either a TextElement or an ImageElement. Both are values; every
// update produces a new element carrying the same id.
type Element interface {
	ElementID() string
	Kind() Kind
	Position() (x, y float64)
	isElement()
}

// Base holds the attributes shared by every element variant.
type Base struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

func (b Base) ElementID() string { return b.ID }
func (b Base) Position() (x, y float64) { return b.X, b.Y }
func (b Base) isElement() {}
func (b Base) withPosition(x, y float64) Base { return Base{ID: b.ID, X: x, Y: y} }

// TextElement is a block of text. A nil Width means the text is not wrapped;
// otherwise it reflows within Width.
type TextElement struct {
	Base
	Text           string         `json:"text"`
	FontSize       float64        `json:"fontSize"`
	FontFamily     string         `json:"fontFamily,omitempty"`
	Fill           string         `json:"fill,omitempty"`
	FontWeight     FontWeight     `json:"fontWeight,omitempty"`
	FontStyle      FontStyle      `json:"fontStyle,omitempty"`
	TextDecoration TextDecoration `json:"textDecoration,omitempty"`
	TextAlign      TextAlign      `json:"textAlign,omitempty"`
	Width          *float64       `json:"width,omitempty"`
}

func (TextElement) Kind() Kind { return KindText }

func (t TextElement) Bold() bool { return t.FontWeight == FontWeightBold }
func (t TextElement) Italic() bool { return t.FontStyle == FontStyleItalic }
func (t TextElement) Underlined() bool { return t.TextDecoration == DecorationUnderline }

// Clone returns a copy that shares no pointers with t.
func (t TextElement) Clone() TextElement {
	if t.Width != nil {
		w := *t.Width
		t.Width = &w
	}
	return t
}

type ImageElement struct {
	Base
	Src     string  `json:"src"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Opacity float64 `json:"opacity"`
}

func (ImageElement) Kind() Kind { return KindImage }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func cloneElement(e Element) Element {
	if t, ok := e.(TextElement); ok {
		return t.Clone()
	}
	return e
}
