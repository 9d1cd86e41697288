package textedit

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certificate-server/layout"
)

// monospace measures every character as 10 units wide.
type monospace struct{}

func (monospace) Measure(_ layout.TextElement, s string) float64 {
	return float64(utf8.RuneCountInString(s)) * 10
}

func char(r rune) KeyEvent { return KeyEvent{Key: KeyChar, Char: r} }

func TestApplyKeys(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		caret      int
		ev         KeyEvent
		wantText   string
		wantCaret  int
		wantHandle bool
	}{
		{"backspace", "abc", 2, KeyEvent{Key: KeyBackspace}, "ac", 1, true},
		{"backspace at start", "abc", 0, KeyEvent{Key: KeyBackspace}, "abc", 0, true},
		{"delete", "abc", 1, KeyEvent{Key: KeyDelete}, "ac", 1, true},
		{"delete at end", "abc", 3, KeyEvent{Key: KeyDelete}, "abc", 3, true},
		{"enter", "ab", 1, KeyEvent{Key: KeyEnter}, "a\nb", 2, true},
		{"left at start", "ab", 0, KeyEvent{Key: KeyLeft}, "ab", 0, true},
		{"right at end", "ab", 2, KeyEvent{Key: KeyRight}, "ab", 2, true},
		{"home second line", "ab\ncd", 4, KeyEvent{Key: KeyHome}, "ab\ncd", 3, true},
		{"end first line", "ab\ncd", 0, KeyEvent{Key: KeyEnd}, "ab\ncd", 2, true},
		{"insert", "ac", 1, char('b'), "abc", 2, true},
		{"insert multibyte", "ç", 1, char('ã'), "çã", 2, true},
		{"shifted char", "a", 1, KeyEvent{Key: KeyChar, Char: 'B', Mods: Modifiers{Shift: true}}, "aB", 2, true},
		{"ctrl char", "a", 1, KeyEvent{Key: KeyChar, Char: 'c', Mods: Modifiers{Ctrl: true}}, "a", 1, false},
		{"other key", "a", 1, KeyEvent{Key: KeyOther}, "a", 1, false},
		{"caret beyond text", "ab", 9, char('c'), "abc", 3, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, caret, handled := Apply(tc.text, tc.caret, tc.ev)
			assert.Equal(t, tc.wantText, text)
			assert.Equal(t, tc.wantCaret, caret)
			assert.Equal(t, tc.wantHandle, handled)
		})
	}
}

func TestParseKey(t *testing.T) {
	assert.Equal(t, KeyLeft, ParseKey("ArrowLeft", Modifiers{}).Key)
	ev := ParseKey("x", Modifiers{Shift: true})
	assert.Equal(t, KeyChar, ev.Key)
	assert.Equal(t, 'x', ev.Char)
	assert.Equal(t, KeyOther, ParseKey("F5", Modifiers{}).Key)
	assert.Equal(t, KeyOther, ParseKey("\t", Modifiers{}).Key)
}

func TestTypingThenHome(t *testing.T) {
	var c Caret
	c.Begin("el", "", time.Now())
	text := ""
	for _, ev := range []KeyEvent{char('a'), char('b'), {Key: KeyHome}, char('X')} {
		text, _ = c.HandleKey(text, ev)
	}
	assert.Equal(t, "Xab", text)
	assert.Equal(t, 1, c.Offset())
}

func TestSyncClampsCaret(t *testing.T) {
	var c Caret
	c.Begin("el", "hello", time.Now())
	require.Equal(t, 5, c.Offset())

	c.Sync("hi")
	assert.Equal(t, 2, c.Offset())
}

func TestIdleIgnoresKeys(t *testing.T) {
	var c Caret
	text, handled := c.HandleKey("abc", char('x'))
	assert.False(t, handled)
	assert.Equal(t, "abc", text)
	assert.Equal(t, Idle, c.State())

	c.Begin("el", "abc", time.Now())
	assert.True(t, c.Editing("el"))
	c.End()
	assert.False(t, c.Editing("el"))
	assert.Equal(t, 0, c.Offset())
}

func TestCaretBlink(t *testing.T) {
	var c Caret
	start := time.Unix(0, 0)
	assert.False(t, c.Visible(start))

	c.Begin("el", "", start)
	assert.True(t, c.Visible(start))
	assert.True(t, c.Visible(start.Add(529*time.Millisecond)))
	assert.False(t, c.Visible(start.Add(530*time.Millisecond)))
	assert.True(t, c.Visible(start.Add(1060*time.Millisecond)))
}

func TestCaretAt(t *testing.T) {
	el := layout.NewText(100, 100, "abc\nde", 10, "")
	lh := LineHeight(10)

	assert.Equal(t, 0, CaretAt(el, monospace{}, 90, 100))
	assert.Equal(t, 2, CaretAt(el, monospace{}, 121, 101))
	assert.Equal(t, 3, CaretAt(el, monospace{}, 500, 100))
	// second line starts at offset 4
	assert.Equal(t, 5, CaretAt(el, monospace{}, 110, 100+lh+1))
	// below the last line clamps to it
	assert.Equal(t, 6, CaretAt(el, monospace{}, 500, 1000))
	// above the first line clamps to it
	assert.Equal(t, 1, CaretAt(el, monospace{}, 111, 0))
}

func TestCaretAtTieGoesLeft(t *testing.T) {
	el := layout.NewText(0, 0, "ab", 10, "")
	// 5 is equally far from boundaries 0 and 1
	assert.Equal(t, 0, CaretAt(el, monospace{}, 5, 0))
}

func TestCaretAtEmptyText(t *testing.T) {
	el := layout.NewText(0, 0, "", 10, "")
	assert.Equal(t, 0, CaretAt(el, monospace{}, 50, 50))
}

func TestLinesWrapAndAlign(t *testing.T) {
	width := 60.0
	el := layout.NewText(0, 0, "aa bb cc", 10, "")
	el.Width = &width
	el.TextAlign = layout.AlignCenter

	lines := Lines(el, monospace{})
	require.Len(t, lines, 2)
	assert.Equal(t, "aa bb ", lines[0].Text)
	assert.Equal(t, 0, lines[0].Start)
	assert.Equal(t, 6, lines[0].End)
	assert.Equal(t, 50.0, lines[0].Width)
	assert.Equal(t, 5.0, lines[0].X)
	assert.Equal(t, "cc", lines[1].Text)
	assert.Equal(t, 6, lines[1].Start)
	assert.Equal(t, 20.0, lines[1].X)
	assert.Equal(t, LineHeight(10), lines[1].Y)
}

func TestLinesWithoutWidthUseWidestLine(t *testing.T) {
	el := layout.NewText(0, 0, "abcd\nab", 10, "")
	el.TextAlign = layout.AlignRight

	lines := Lines(el, monospace{})
	require.Len(t, lines, 2)
	assert.Equal(t, 0.0, lines[0].X)
	assert.Equal(t, 20.0, lines[1].X)
	assert.Equal(t, 5, lines[1].Start)
}

func TestSize(t *testing.T) {
	el := layout.NewText(0, 0, "abcd\nab", 10, "")
	w, h := Size(el, monospace{})
	assert.Equal(t, 40.0, w)
	assert.InDelta(t, 24.0, h, 1e-9)

	width := 100.0
	el.Width = &width
	w, _ = Size(el, monospace{})
	assert.Equal(t, 100.0, w)
}
