package layout

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultFontSize   = 20
	DefaultFill       = "#000000"
	DefaultFontFamily = "Arial"
	DefaultImageSize  = 100
)

type Preset string

const (
	PresetText        Preset = "text"
	PresetCourseName  Preset = "course_name"
	PresetStudentName Preset = "student_name"
	PresetInstructor  Preset = "instructor"
	PresetImage       Preset = "image"
)

// StudentNamePlaceholder is the text of the student name preset. Certificate
// generation substitutes it with the student's name.
const StudentNamePlaceholder = "Nome do Aluno"

var newID = uuid.NewString

// NewText returns a text element at (x, y) with a fresh id and the factory
// defaults. An empty fontFamily falls back to DefaultFontFamily.
func NewText(x, y float64, text string, fontSize float64, fontFamily string) TextElement {
	if fontFamily == "" {
		fontFamily = DefaultFontFamily
	}
	return TextElement{
		Base:       Base{ID: newID(), X: x, Y: y},
		Text:       text,
		FontSize:   ClampFontSize(fontSize),
		FontFamily: fontFamily,
		Fill:       DefaultFill,
	}
}

// NewImage returns a 100x100 fully opaque image element at (x, y).
func NewImage(x, y float64, src string) ImageElement {
	return ImageElement{
		Base:    Base{ID: newID(), X: x, Y: y},
		Src:     src,
		Width:   DefaultImageSize,
		Height:  DefaultImageSize,
		Opacity: 1,
	}
}

// FromPreset builds one of the toolbar elements. fontFamily applies to text
// presets and src to the image preset.
func FromPreset(p Preset, fontFamily, src string) (Element, error) {
	switch p {
	case PresetText:
		return NewText(100, 100, "Digite seu texto", DefaultFontSize, fontFamily), nil
	case PresetCourseName:
		t := NewText(100, 200, "Nome do Curso", 24, fontFamily)
		t.FontWeight = FontWeightBold
		t.TextAlign = AlignCenter
		return t, nil
	case PresetStudentName:
		t := NewText(100, 150, StudentNamePlaceholder, 28, fontFamily)
		t.FontWeight = FontWeightBold
		t.TextAlign = AlignCenter
		return t, nil
	case PresetInstructor:
		return NewText(100, 250, "Instrutor", 18, fontFamily), nil
	case PresetImage:
		return NewImage(50, 50, src), nil
	}
	return nil, fmt.Errorf("unknown preset %q", p)
}

// Presets lists the presets in toolbar order.
func Presets() []Preset {
	return []Preset{PresetText, PresetCourseName, PresetStudentName, PresetInstructor, PresetImage}
}
