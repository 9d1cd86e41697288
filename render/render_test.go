package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certificate-server/layout"
)

func solidPNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func TestRenderCanvasSize(t *testing.T) {
	r := newTestRenderer(t)
	ctx := context.Background()

	img, err := r.Render(ctx, layout.NewDocument(layout.Landscape, ""), 0.5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 450, 300), img.Bounds())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(10, 10))

	img, err = r.Render(ctx, layout.NewDocument(layout.Portrait, ""), 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1200, 1800), img.Bounds())

	_, err = r.Render(ctx, layout.NewDocument(layout.Portrait, ""), 0)
	assert.ErrorIs(t, err, ErrPixelRatio)
}

func TestRenderImageWithOpacity(t *testing.T) {
	r := newTestRenderer(t)
	red := dataURI(solidPNG(t, color.RGBA{255, 0, 0, 255}, 10, 10))

	doc := layout.NewDocument(layout.Landscape, "")
	opaque := layout.NewImage(0, 0, red)
	faded := layout.NewImage(200, 0, red)
	faded.Opacity = 0.5
	require.NoError(t, doc.Add(opaque))
	require.NoError(t, doc.Add(faded))

	img, err := r.Render(context.Background(), doc, 1)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.RGBAAt(50, 50))

	px := img.RGBAAt(250, 50)
	assert.Equal(t, uint8(255), px.R)
	assert.InDelta(t, 127, int(px.G), 2)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(150, 50))
}

func TestRenderSkipsBrokenImages(t *testing.T) {
	r := newTestRenderer(t)
	doc := layout.NewDocument(layout.Landscape, "data:image/png;base64,bm90IGFuIGltYWdl")
	require.NoError(t, doc.Add(layout.NewImage(0, 0, "ftp://example.com/x.png")))

	_, err := r.Render(context.Background(), doc, 1)
	assert.NoError(t, err)
}

func TestRenderTextDrawsInk(t *testing.T) {
	r := newTestRenderer(t)
	doc := layout.NewDocument(layout.Landscape, "")
	text := layout.NewText(10, 10, "MMMM", 40, "")
	text.TextDecoration = layout.DecorationUnderline
	require.NoError(t, doc.Add(text))

	img, err := r.Render(context.Background(), doc, 1)
	require.NoError(t, err)

	dark := 0
	for y := 10; y < 70; y++ {
		for x := 10; x < 150; x++ {
			if img.RGBAAt(x, y).R < 128 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 100)
}

func TestMeasureGrowsWithText(t *testing.T) {
	bank, err := NewFontBank()
	require.NoError(t, err)
	el := layout.NewText(0, 0, "", 20, "")

	assert.Equal(t, 0.0, bank.Measure(el, ""))
	short := bank.Measure(el, "aa")
	long := bank.Measure(el, "aaaa")
	assert.Greater(t, short, 0.0)
	assert.InDelta(t, 2*short, long, 1)

	el.FontSize = 40
	assert.Greater(t, bank.Measure(el, "aa"), short)
}

func TestMeasureFaceCacheIsBounded(t *testing.T) {
	bank, err := NewFontBank()
	require.NoError(t, err)
	el := layout.TextElement{Text: "Certificado", FontSize: 20}

	base := bank.Measure(el, el.Text)
	el.FontSize = 20.1
	assert.InDelta(t, base*20.1/20, bank.Measure(el, el.Text), 1e-9)
	assert.Len(t, bank.faces, 1)

	for i := 0; i < 1000; i++ {
		el.FontSize = 8 + float64(i)*0.19
		assert.Greater(t, bank.Measure(el, el.Text), 0.0)
	}
	assert.LessOrEqual(t, len(bank.faces), faceCacheSize)
}

func TestExports(t *testing.T) {
	r := newTestRenderer(t)
	ctx := context.Background()
	doc := layout.NewDocument(layout.Portrait, "")
	require.NoError(t, doc.Add(layout.NewText(100, 100, "Certificado", 28, "")))

	thumb, err := r.Thumbnail(ctx, doc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(thumb, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(thumb, "data:image/png;base64,"))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 450, cfg.Height)

	pdf, err := r.PDF(ctx, doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Contains(t, string(pdf), "/MediaBox [0 0 600.00 900.00]")
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, ParseColor("#ff0000"))
	assert.Equal(t, color.NRGBA{0, 0x33, 0xff, 255}, ParseColor("#03f"))
	assert.Equal(t, color.NRGBA{1, 2, 3, 4}, ParseColor("#01020304"))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, ParseColor("Blue"))
	assert.Equal(t, color.Black, ParseColor("not-a-color"))
	assert.Equal(t, color.Black, ParseColor(""))
}

func TestImageLoader(t *testing.T) {
	payload := solidPNG(t, color.RGBA{0, 255, 0, 255}, 4, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	l := NewImageLoader()
	l.AllowPrivateHosts = true
	ctx := context.Background()

	img, err := l.Load(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = l.Load(ctx, srv.URL+"/missing.png")
	assert.Error(t, err)

	l.MaxBytes = 10
	_, err = l.Load(ctx, srv.URL+"/other.png")
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = l.Load(ctx, "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = Decode([]byte("plain text"), DefaultMaxImagePixels)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestImageLoaderRejectsPrivateHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Loader reached a loopback server")
	}))
	defer srv.Close()

	_, err := NewImageLoader().Load(context.Background(), srv.URL+"/logo.png")
	assert.ErrorIs(t, err, ErrPrivateHost)
}

func TestImageLoaderLimitsDecodedSize(t *testing.T) {
	ctx := context.Background()

	// A large blank grayscale PNG compresses to a few hundred kilobytes.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8000, 6000))))
	huge := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	l := NewImageLoader()
	require.Less(t, int64(len(huge)), l.MaxBytes)
	_, err := l.Load(ctx, huge)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	small := "data:image/png;base64," + base64.StdEncoding.EncodeToString(solidPNG(t, color.White, 4, 4))
	l.MaxPixels = 15
	_, err = l.Load(ctx, small)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	l = NewImageLoader()
	l.MaxBytes = 16
	_, err = l.Load(ctx, small)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	l.MaxBytes = DefaultMaxImageBytes
	img, err := l.Load(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}
