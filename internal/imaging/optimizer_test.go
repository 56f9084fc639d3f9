package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/gen2brain/webp"
	"github.com/openmined/assetsync/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestOptimize_ResizesWideImages(t *testing.T) {
	raw := encodeJPEG(t, gradient(2000, 1000))

	out, err := New(800, 75).Optimize(raw, media.JPEG)
	require.NoError(t, err)

	cfg, format := decodeConfig(t, out)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
	assert.Less(t, len(out), len(raw))
}

func TestOptimize_NeverUpscales(t *testing.T) {
	raw := encodePNG(t, gradient(400, 300))

	out, err := New(800, 75).Optimize(raw, media.PNG)
	require.NoError(t, err)

	cfg, format := decodeConfig(t, out)
	assert.Equal(t, "png", format)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestOptimize_ExactlyMaxWidthUntouched(t *testing.T) {
	raw := encodeJPEG(t, gradient(800, 123))

	out, err := New(800, 75).Optimize(raw, media.JPEG)
	require.NoError(t, err)

	cfg, _ := decodeConfig(t, out)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 123, cfg.Height)
}

func TestOptimize_PNGIsQuantized(t *testing.T) {
	raw := encodePNG(t, gradient(64, 64))

	out, err := New(800, 70).Optimize(raw, media.PNG)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	paletted, ok := img.(*image.Paletted)
	require.True(t, ok, "expected a paletted png, got %T", img)
	assert.LessOrEqual(t, len(paletted.Palette), paletteSize(70))
}

func TestOptimize_PNGFullQualityKeepsColour(t *testing.T) {
	raw := encodePNG(t, gradient(32, 32))

	out, err := New(800, 100).Optimize(raw, media.PNG)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	_, paletted := img.(*image.Paletted)
	assert.False(t, paletted)
}

func TestOptimize_WebP(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, webp.Encode(&src, gradient(1200, 600), webp.Options{Quality: 95}))

	out, err := New(800, 75).Optimize(src.Bytes(), media.WEBP)
	require.NoError(t, err)

	img, err := webp.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())
}

func TestOptimize_SniffsActualFormat(t *testing.T) {
	// a png that was saved with a .jpg name
	raw := encodePNG(t, gradient(100, 50))

	out, err := New(800, 75).Optimize(raw, media.JPEG)
	require.NoError(t, err)

	_, format := decodeConfig(t, out)
	assert.Equal(t, "jpeg", format)
}

func TestOptimize_TranslucentToJPEG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	raw := encodePNG(t, img)

	out, err := New(800, 75).Optimize(raw, media.JPEG)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(5, 5).RGBA()
	assert.Greater(t, r, uint32(0xf000))
	assert.Greater(t, g, uint32(0xf000))
	assert.Greater(t, b, uint32(0xf000))
}

func TestOptimize_StripsMetadata(t *testing.T) {
	raw := encodeJPEG(t, gradient(50, 50))

	exif := append([]byte("Exif\x00\x00"), []byte("GPS 52.37N 4.89E")...)
	segment := []byte{0xFF, 0xE1, byte((len(exif) + 2) >> 8), byte(len(exif) + 2)}
	segment = append(segment, exif...)

	withExif := append([]byte{}, raw[:2]...)
	withExif = append(withExif, segment...)
	withExif = append(withExif, raw[2:]...)
	require.True(t, bytes.Contains(withExif, []byte("Exif")))

	out, err := New(800, 75).Optimize(withExif, media.JPEG)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out, []byte("Exif")))
	assert.False(t, bytes.Contains(out, []byte("GPS")))
}

func TestOptimize_Errors(t *testing.T) {
	o := New(800, 75)

	_, err := o.Optimize([]byte("definitely not an image"), media.JPEG)
	assert.ErrorIs(t, err, ErrUndecodable)

	raw := encodeJPEG(t, gradient(20, 20))
	_, err = o.Optimize(raw[:len(raw)/2], media.JPEG)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = o.Optimize(raw, media.Unsupported)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestOptimize_DoesNotModifyInput(t *testing.T) {
	raw := encodeJPEG(t, gradient(1000, 10))
	orig := append([]byte{}, raw...)

	_, err := New(800, 75).Optimize(raw, media.JPEG)
	require.NoError(t, err)
	assert.Equal(t, orig, raw)
}

func TestPaletteSize(t *testing.T) {
	assert.Equal(t, 2, paletteSize(0))
	assert.Equal(t, 179, paletteSize(70))
	assert.Equal(t, 256, paletteSize(100))
}
