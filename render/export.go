package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"

	"codeberg.org/go-pdf/fpdf"

	"certificate-server/layout"
)

const (
	ThumbnailPixelRatio = 0.5
	ExportPixelRatio    = 2
)

// PNG renders doc at pixelRatio and encodes it as PNG.
func (r *Renderer) PNG(ctx context.Context, doc *layout.Document, pixelRatio float64) ([]byte, error) {
	img, err := r.Render(ctx, doc, pixelRatio)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail renders a half-size preview as a PNG data URI.
func (r *Renderer) Thumbnail(ctx context.Context, doc *layout.Document) (string, error) {
	data, err := r.PNG(ctx, doc, ThumbnailPixelRatio)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// PDF renders doc at ExportPixelRatio and places the raster on a single page
// whose size in points equals the canvas size.
func (r *Renderer) PDF(ctx context.Context, doc *layout.Document) ([]byte, error) {
	raster, err := r.PNG(ctx, doc, ExportPixelRatio)
	if err != nil {
		return nil, err
	}

	w, h := doc.Orientation.CanvasSize()
	orientation := "P"
	if doc.Orientation != layout.Portrait {
		orientation = "L"
	}
	// fpdf swaps the page size for landscape, so it is always given portrait.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: min(w, h), Ht: max(w, h)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("certificate", opts, bytes.NewReader(raster))
	pdf.ImageOptions("certificate", 0, 0, w, h, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
