package render

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"certificate-server/layout"
)

type fontKey struct {
	mono   bool
	bold   bool
	italic bool
}

type faceKey struct {
	fontKey
	size float64
}

const faceCacheSize = 128

// FontBank maps element font attributes onto the Go font family. Monospaced
// family names use Go Mono; everything else uses Go Regular.
type FontBank struct {
	fonts map[fontKey]*opentype.Font

	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func NewFontBank() (*FontBank, error) {
	sources := []struct {
		key fontKey
		ttf []byte
	}{
		{fontKey{}, goregular.TTF},
		{fontKey{bold: true}, gobold.TTF},
		{fontKey{italic: true}, goitalic.TTF},
		{fontKey{bold: true, italic: true}, gobolditalic.TTF},
		{fontKey{mono: true}, gomono.TTF},
		{fontKey{mono: true, bold: true}, gomonobold.TTF},
		{fontKey{mono: true, italic: true}, gomonoitalic.TTF},
		{fontKey{mono: true, bold: true, italic: true}, gomonobolditalic.TTF},
	}
	bank := &FontBank{
		fonts: make(map[fontKey]*opentype.Font, len(sources)),
		faces: make(map[faceKey]font.Face),
	}
	for _, src := range sources {
		f, err := opentype.Parse(src.ttf)
		if err != nil {
			return nil, fmt.Errorf("parse font: %w", err)
		}
		bank.fonts[src.key] = f
	}
	return bank, nil
}

func keyFor(el layout.TextElement) fontKey {
	family := strings.ToLower(el.FontFamily)
	return fontKey{
		mono:   strings.Contains(family, "courier") || strings.Contains(family, "mono"),
		bold:   el.Bold(),
		italic: el.Italic(),
	}
}

// NewFace returns a face for el at its font size times scale. Faces are not
// safe for concurrent use; callers own the returned face.
func (b *FontBank) NewFace(el layout.TextElement, scale float64) font.Face {
	f, ok := b.fonts[keyFor(el)]
	if !ok {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    el.FontSize * scale,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Measure returns the advance width of s in canvas units. Faces are cached
// per half point and the width is scaled to the exact size.
func (b *FontBank) Measure(el layout.TextElement, s string) float64 {
	if s == "" {
		return 0
	}
	size := math.Round(el.FontSize*2) / 2
	if size <= 0 {
		size = 0.5
	}
	key := faceKey{keyFor(el), size}

	b.mu.Lock()
	defer b.mu.Unlock()
	face, ok := b.faces[key]
	if !ok {
		if len(b.faces) >= faceCacheSize {
			b.faces = make(map[faceKey]font.Face)
		}
		sized := el
		sized.FontSize = size
		face = b.NewFace(sized, 1)
		b.faces[key] = face
	}
	return float64(font.MeasureString(face, s)) / 64 * el.FontSize / size
}
