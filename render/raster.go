// Package render rasterizes certificate layouts and exports them as PNG
// images, thumbnails and single-page PDFs.
package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"certificate-server/layout"
	"certificate-server/layout/textedit"
)

var ErrPixelRatio = errors.New("pixel ratio must be a positive number")

// Renderer draws documents. It is safe for concurrent use.
type Renderer struct {
	Fonts  *FontBank
	Images *ImageLoader
}

func NewRenderer() (*Renderer, error) {
	fonts, err := NewFontBank()
	if err != nil {
		return nil, err
	}
	return &Renderer{Fonts: fonts, Images: NewImageLoader()}, nil
}

// Render draws doc onto a white canvas of the orientation's size multiplied by
// pixelRatio. Elements are painted in z-order. Images that cannot be loaded
// are skipped and logged.
func (r *Renderer) Render(ctx context.Context, doc *layout.Document, pixelRatio float64) (*image.RGBA, error) {
	if math.IsNaN(pixelRatio) || math.IsInf(pixelRatio, 0) || pixelRatio <= 0 {
		return nil, ErrPixelRatio
	}
	w, h := doc.Orientation.CanvasSize()
	dst := image.NewRGBA(image.Rect(0, 0, scaled(w, pixelRatio), scaled(h, pixelRatio)))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	log := logrus.WithField("pixel_ratio", pixelRatio)
	if doc.BackgroundImage != "" {
		bg, err := r.Images.Load(ctx, doc.BackgroundImage)
		if err != nil {
			log.WithError(err).Warn("Failed to load background image")
		} else {
			draw.BiLinear.Scale(dst, dst.Bounds(), bg, bg.Bounds(), draw.Over, nil)
		}
	}

	for _, e := range doc.Elements() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch el := e.(type) {
		case layout.ImageElement:
			if err := r.drawImage(ctx, dst, el, pixelRatio); err != nil {
				log.WithError(err).WithField("element_id", el.ID).Warn("Failed to draw image element")
			}
		case layout.TextElement:
			r.drawText(dst, el, pixelRatio)
		}
	}
	return dst, nil
}

func scaled(v, ratio float64) int {
	return int(math.Round(v * ratio))
}

func (r *Renderer) drawImage(ctx context.Context, dst *image.RGBA, el layout.ImageElement, ratio float64) error {
	if el.Src == "" || el.Opacity <= 0 {
		return nil
	}
	src, err := r.Images.Load(ctx, el.Src)
	if err != nil {
		return err
	}
	rect := image.Rect(
		scaled(el.X, ratio), scaled(el.Y, ratio),
		scaled(el.X+el.Width, ratio), scaled(el.Y+el.Height, ratio),
	)
	if rect.Empty() {
		return nil
	}
	tile := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.BiLinear.Scale(tile, tile.Bounds(), src, src.Bounds(), draw.Src, nil)

	alpha := uint8(math.Round(math.Min(el.Opacity, 1) * 255))
	draw.DrawMask(dst, rect, tile, image.Point{}, image.NewUniform(color.Alpha{A: alpha}), image.Point{}, draw.Over)
	return nil
}

func (r *Renderer) drawText(dst *image.RGBA, el layout.TextElement, ratio float64) {
	face := r.Fonts.NewFace(el, ratio)
	defer face.Close()

	metrics := face.Metrics()
	glyphHeight := float64(metrics.Ascent+metrics.Descent) / 64
	ascent := float64(metrics.Ascent) / 64
	lineHeight := textedit.LineHeight(el.FontSize) * ratio
	ink := image.NewUniform(ParseColor(el.Fill))

	for _, line := range textedit.Lines(el, r.Fonts) {
		text := strings.TrimRight(line.Text, " \t")
		if text == "" {
			continue
		}
		x := line.X * ratio
		baseline := line.Y*ratio + (lineHeight-glyphHeight)/2 + ascent
		d := font.Drawer{
			Dst:  dst,
			Src:  ink,
			Face: face,
			Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(baseline * 64)},
		}
		d.DrawString(text)

		if el.Underlined() {
			thickness := math.Max(1, el.FontSize*ratio/15)
			top := baseline + thickness
			underline := image.Rect(int(x), int(top), int(math.Ceil(x+line.Width*ratio)), int(math.Ceil(top+thickness)))
			draw.Draw(dst, underline, ink, image.Point{}, draw.Over)
		}
	}
}

// ParseColor reads #rgb, #rrggbb, #rrggbbaa or a CSS color name. Anything
// else is black.
func ParseColor(s string) color.Color {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.Black
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.Black
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.Black
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}
