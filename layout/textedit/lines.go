package textedit

import (
	"math"
	"strings"
	"unicode"

	"certificate-server/layout"
)

// LineSpacing is the line height as a multiple of the font size.
const LineSpacing = 1.2

// Measurer returns the rendered width of s in the element's font.
type Measurer interface {
	Measure(el layout.TextElement, s string) float64
}

// Line is one laid-out line of a text element. Start and End are character
// offsets into the element text; X and Y are the canvas position of the
// line's top-left corner.
type Line struct {
	Start int
	End   int
	Text  string
	X     float64
	Y     float64
	Width float64
}

func LineHeight(fontSize float64) float64 {
	return fontSize * LineSpacing
}

// Lines lays out el: explicit newlines always break, and when a wrap width
// is set words are wrapped to fit it. Lines are aligned inside the box, which
// is the wrap width or, without one, the widest line.
func Lines(el layout.TextElement, m Measurer) []Line {
	var lines []Line
	offset := 0
	for _, logical := range strings.Split(el.Text, "\n") {
		for _, seg := range wrap(el, m, []rune(logical)) {
			n := len(seg)
			lines = append(lines, Line{
				Start: offset,
				End:   offset + n,
				Text:  string(seg),
				Width: m.Measure(el, strings.TrimRightFunc(string(seg), unicode.IsSpace)),
			})
			offset += n
		}
		offset++ // the newline
	}

	box := 0.0
	if el.Width != nil {
		box = *el.Width
	} else {
		for _, l := range lines {
			box = math.Max(box, l.Width)
		}
	}

	lh := LineHeight(el.FontSize)
	for i := range lines {
		lines[i].X = el.X + alignOffset(el.TextAlign, box, lines[i].Width)
		lines[i].Y = el.Y + float64(i)*lh
	}
	return lines
}

func alignOffset(align layout.TextAlign, box, width float64) float64 {
	switch align {
	case layout.AlignCenter:
		return (box - width) / 2
	case layout.AlignRight:
		return box - width
	}
	return 0
}

// wrap splits one logical line into segments no wider than the wrap width.
// Breaks happen after whitespace; a single word wider than the box is kept
// whole.
func wrap(el layout.TextElement, m Measurer, runes []rune) [][]rune {
	if el.Width == nil || len(runes) == 0 {
		return [][]rune{runes}
	}
	limit := *el.Width

	var out [][]rune
	var cur []rune
	for _, word := range words(runes) {
		candidate := append(append([]rune(nil), cur...), word...)
		if len(cur) > 0 && m.Measure(el, strings.TrimRightFunc(string(candidate), unicode.IsSpace)) > limit {
			out = append(out, cur)
			cur = append([]rune(nil), word...)
			continue
		}
		cur = candidate
	}
	return append(out, cur)
}

// words splits runes into words, each carrying its trailing whitespace.
func words(runes []rune) [][]rune {
	var out [][]rune
	start := 0
	for i := 1; i < len(runes); i++ {
		if unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(runes[i]) {
			out = append(out, runes[start:i])
			start = i
		}
	}
	return append(out, runes[start:])
}

// CaretAt maps a click at canvas point (px, py) to a caret offset in el. The
// line is picked from the vertical offset; within it, the character boundary
// whose prefix width is nearest to the click wins, the leftmost on ties.
func CaretAt(el layout.TextElement, m Measurer, px, py float64) int {
	lines := Lines(el, m)
	idx := 0
	if lh := LineHeight(el.FontSize); lh > 0 {
		idx = int(math.Floor((py - el.Y) / lh))
	}
	line := lines[clamp(idx, 0, len(lines)-1)]

	relX := px - line.X
	runes := []rune(line.Text)
	best, bestDist := 0, math.Inf(1)
	for i := 0; i <= len(runes); i++ {
		d := math.Abs(m.Measure(el, string(runes[:i])) - relX)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return line.Start + best
}

// Size returns the extent of el's text box: the wrap width or widest line
// across, one line height per laid-out line down.
func Size(el layout.TextElement, m Measurer) (w, h float64) {
	lines := Lines(el, m)
	if el.Width != nil {
		w = *el.Width
	} else {
		for _, l := range lines {
			w = math.Max(w, l.Width)
		}
	}
	return w, float64(len(lines)) * LineHeight(el.FontSize)
}
