package layout

import (
	"math"
	"strconv"
	"strings"
)

const (
	MinFontSize  = 8
	MaxFontSize  = 200
	FontSizeStep = 2
	MinTextWidth = 30
	MinImageSize = 5
)

// ClampFontSize bounds v to [MinFontSize, MaxFontSize]. A non-finite value
// yields DefaultFontSize.
func ClampFontSize(v float64) float64 {
	if !finite(v) {
		return DefaultFontSize
	}
	return math.Min(math.Max(v, MinFontSize), MaxFontSize)
}

// ParseFontSize reads a font size typed by the user. Input that is not a
// number yields DefaultFontSize.
func ParseFontSize(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return DefaultFontSize
	}
	return ClampFontSize(v)
}

// Move places e at (x, y). Positions are not bounded by the canvas.
func Move(e Element, x, y float64) (Element, error) {
	if !finite(x, y) {
		return e, ErrRejected
	}
	switch el := e.(type) {
	case TextElement:
		el = el.Clone()
		el.Base = el.withPosition(x, y)
		return el, nil
	case ImageElement:
		el.Base = el.withPosition(x, y)
		return el, nil
	}
	return e, ErrUnknownKind
}

// Resize applies the result of a transform gesture: the new top-left corner
// and the scale factors relative to the stored size. On ErrRejected the
// returned element is e unchanged.
func Resize(e Element, x, y, sx, sy float64) (Element, error) {
	switch el := e.(type) {
	case TextElement:
		return ResizeText(el, x, y, sx, sy)
	case ImageElement:
		return ResizeImage(el, x, y, sx, sy)
	}
	return e, ErrUnknownKind
}

func validGesture(x, y, sx, sy float64) bool {
	return finite(x, y, sx, sy) && sx > 0 && sy > 0
}

// ResizeText scales the wrap width horizontally (never below MinTextWidth, and
// only when a width is set) and the font size vertically.
func ResizeText(t TextElement, x, y, sx, sy float64) (TextElement, error) {
	if !validGesture(x, y, sx, sy) {
		return t, ErrRejected
	}
	next := t.Clone()
	next.Base = t.withPosition(x, y)
	if next.Width != nil {
		w := math.Max(*next.Width*sx, MinTextWidth)
		next.Width = &w
	}
	next.FontSize = ClampFontSize(t.FontSize * sy)
	return next, nil
}

// ResizeImage scales width and height. A result smaller than MinImageSize on
// either axis is rejected and the prior box, position included, is kept.
func ResizeImage(img ImageElement, x, y, sx, sy float64) (ImageElement, error) {
	if !validGesture(x, y, sx, sy) {
		return img, ErrRejected
	}
	w, h := img.Width*sx, img.Height*sy
	if w < MinImageSize || h < MinImageSize {
		return img, ErrRejected
	}
	img.Base = img.withPosition(x, y)
	img.Width, img.Height = w, h
	return img, nil
}

// TextStyle is a partial update of a text element. Nil fields are left as they
// are; toggles flip the current value.
type TextStyle struct {
	Text            *string
	FontSize        *float64
	FontSizeDelta   float64
	FontFamily      *string
	Fill            *string
	FontWeight      *FontWeight
	FontStyle       *FontStyle
	TextDecoration  *TextDecoration
	TextAlign       *TextAlign
	Width           *float64
	ClearWidth      bool
	ToggleBold      bool
	ToggleItalic    bool
	ToggleUnderline bool
}

// Apply returns t with the style applied. Invalid enum values or a
// non-finite size reject the whole update.
func (s TextStyle) Apply(t TextElement) (TextElement, error) {
	next := t.Clone()
	if s.Text != nil {
		next.Text = *s.Text
	}
	if s.FontSize != nil {
		if !finite(*s.FontSize) {
			return t, ErrRejected
		}
		next.FontSize = ClampFontSize(*s.FontSize)
	}
	if s.FontSizeDelta != 0 {
		if !finite(s.FontSizeDelta) {
			return t, ErrRejected
		}
		next.FontSize = ClampFontSize(next.FontSize + s.FontSizeDelta)
	}
	if s.FontFamily != nil {
		next.FontFamily = *s.FontFamily
	}
	if s.Fill != nil {
		next.Fill = *s.Fill
	}
	if s.FontWeight != nil {
		if !validWeight(*s.FontWeight) {
			return t, ErrRejected
		}
		next.FontWeight = *s.FontWeight
	}
	if s.FontStyle != nil {
		if !validStyle(*s.FontStyle) {
			return t, ErrRejected
		}
		next.FontStyle = *s.FontStyle
	}
	if s.TextDecoration != nil {
		if !validDecoration(*s.TextDecoration) {
			return t, ErrRejected
		}
		next.TextDecoration = *s.TextDecoration
	}
	if s.TextAlign != nil {
		if !validAlign(*s.TextAlign) {
			return t, ErrRejected
		}
		next.TextAlign = *s.TextAlign
	}
	if s.ClearWidth {
		next.Width = nil
	} else if s.Width != nil {
		if !finite(*s.Width) {
			return t, ErrRejected
		}
		w := math.Max(*s.Width, MinTextWidth)
		next.Width = &w
	}
	if s.ToggleBold {
		next.FontWeight = FontWeightBold
		if t.Bold() {
			next.FontWeight = FontWeightNormal
		}
	}
	if s.ToggleItalic {
		next.FontStyle = FontStyleItalic
		if t.Italic() {
			next.FontStyle = FontStyleNormal
		}
	}
	if s.ToggleUnderline {
		next.TextDecoration = DecorationUnderline
		if t.Underlined() {
			next.TextDecoration = DecorationNone
		}
	}
	return next, nil
}

// ImageStyle is a partial update of an image element.
type ImageStyle struct {
	Src     *string
	Opacity *float64
}

func (s ImageStyle) Apply(img ImageElement) (ImageElement, error) {
	next := img
	if s.Src != nil {
		next.Src = *s.Src
	}
	if s.Opacity != nil {
		if !finite(*s.Opacity) {
			return img, ErrRejected
		}
		next.Opacity = math.Min(math.Max(*s.Opacity, 0), 1)
	}
	return next, nil
}

func validWeight(v FontWeight) bool {
	return v == "" || v == FontWeightNormal || v == FontWeightBold
}

func validStyle(v FontStyle) bool {
	return v == "" || v == FontStyleNormal || v == FontStyleItalic
}

func validDecoration(v TextDecoration) bool {
	return v == "" || v == DecorationNone || v == DecorationUnderline
}

func validAlign(v TextAlign) bool {
	switch v {
	case "", AlignLeft, AlignCenter, AlignRight, AlignJustify:
		return true
	}
	return false
}
