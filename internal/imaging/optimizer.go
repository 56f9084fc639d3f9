// Package imaging downsizes and recompresses images for publishing.
//
// Only pixels survive a round trip through the optimizer: EXIF, IPTC, XMP
// and ICC segments are dropped because images are fully re-encoded.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/webp"
	"github.com/openmined/assetsync/internal/media"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUndecodable          = errors.New("undecodable image")
)

// webpMethod trades encode speed for size, 0 (fast) .. 6 (slow).
const webpMethod = 4

type Optimizer struct {
	MaxWidth int
	Quality  int
}

func New(maxWidth, quality int) *Optimizer {
	return &Optimizer{MaxWidth: maxWidth, Quality: quality}
}

// Optimize decodes raw, shrinks it to MaxWidth when wider and re-encodes it
// as mt. Images are never upscaled. raw is not modified.
func (o *Optimizer) Optimize(raw []byte, mt media.Type) ([]byte, error) {
	if !mt.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt)
	}

	img, err := decode(raw)
	if err != nil {
		return nil, err
	}

	img = o.fit(img)

	var buf bytes.Buffer
	switch mt {
	case media.JPEG:
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: o.Quality})
	case media.PNG:
		err = o.encodePNG(&buf, img)
	case media.WEBP:
		err = webp.Encode(&buf, img, webp.Options{Quality: o.Quality, Method: webpMethod})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", mt, err)
	}

	return buf.Bytes(), nil
}

// fit resizes img down to MaxWidth keeping the aspect ratio.
func (o *Optimizer) fit(img image.Image) image.Image {
	if o.MaxWidth <= 0 || img.Bounds().Dx() <= o.MaxWidth {
		return img
	}
	return imaging.Resize(img, o.MaxWidth, 0, imaging.Lanczos)
}

// encodePNG quantizes to a palette sized by quality before compressing with
// maximum effort. Quality 100 keeps full colour.
func (o *Optimizer) encodePNG(buf *bytes.Buffer, img image.Image) error {
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if o.Quality >= 100 {
		return enc.Encode(buf, img)
	}

	bounds := img.Bounds()
	q := quantize.MedianCutQuantizer{AddTransparent: !isOpaque(img)}
	palette := q.Quantize(make(color.Palette, 0, paletteSize(o.Quality)), img)

	paletted := image.NewPaletted(bounds, palette)
	draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)
	return enc.Encode(buf, paletted)
}

func paletteSize(quality int) int {
	return min(256, max(2, quality*256/100))
}

// decode picks the decoder from the sniffed content, not from the file name,
// so a PNG saved with a .jpg extension still decodes.
func decode(raw []byte) (image.Image, error) {
	mt := mimetype.Detect(raw)

	var (
		img image.Image
		err error
	)
	switch {
	case mt.Is("image/jpeg"):
		img, err = jpeg.Decode(bytes.NewReader(raw))
	case mt.Is("image/png"):
		img, err = png.Decode(bytes.NewReader(raw))
	case mt.Is("image/webp"):
		img, err = webp.Decode(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("%w: content is %s", ErrUndecodable, mt.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return img, nil
}

// flatten composites translucent images onto white, JPEG has no alpha.
func flatten(img image.Image) image.Image {
	if isOpaque(img) {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
