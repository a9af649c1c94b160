package imageprocessor_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// gradient builds an opaque image whose pixels are unique per coordinate.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return img
}

func TestProcessIdentityKeepsPixels(t *testing.T) {
	t.Parallel()

	src := gradient(32, 16)
	out, err := imageprocessor.Process(context.Background(), encodePNG(t, src), variant.Descriptor{ID: "abc"})
	require.NoError(t, err)

	got := decodePNG(t, out)
	require.Equal(t, src.Bounds(), got.Bounds())
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			r1, g1, b1, a1 := src.At(x, y).RGBA()
			r2, g2, b2, a2 := got.At(x, y).RGBA()
			require.Equal(t, [4]uint32{r1, g1, b1, a1}, [4]uint32{r2, g2, b2, a2}, "pixel %d,%d", x, y)
		}
	}
}

func TestProcessScaleModes(t *testing.T) {
	t.Parallel()

	src := encodePNG(t, gradient(200, 100))

	tests := []struct {
		name  string
		scale variant.Scale
		wantW int
		wantH int
	}{
		{name: "cover fills box", scale: variant.Scale{Width: 60, Height: 60, Fit: variant.FitCover}, wantW: 60, wantH: 60},
		{name: "contain pads box", scale: variant.Scale{Width: 60, Height: 60, Fit: variant.FitContain}, wantW: 60, wantH: 60},
		{name: "scaleToFit keeps ratio", scale: variant.Scale{Width: 60, Height: 60, Fit: variant.FitScaleToFit}, wantW: 60, wantH: 30},
		{name: "scaleToFit enlarges", scale: variant.Scale{Width: 400, Height: 400, Fit: variant.FitScaleToFit}, wantW: 400, wantH: 200},
		{name: "width only", scale: variant.Scale{Width: 50, Fit: variant.FitCover}, wantW: 50, wantH: 25},
		{name: "height only", scale: variant.Scale{Height: 50, Fit: variant.FitCover}, wantW: 100, wantH: 50},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := tc.scale
			out, err := imageprocessor.Process(context.Background(), src, variant.Descriptor{ID: "abc", Scale: &s})
			require.NoError(t, err)
			b := decodePNG(t, out).Bounds()
			assert.Equal(t, tc.wantW, b.Dx())
			assert.Equal(t, tc.wantH, b.Dy())
		})
	}
}

func TestProcessContainLetterboxIsTransparent(t *testing.T) {
	t.Parallel()

	src := encodePNG(t, gradient(200, 100))
	out, err := imageprocessor.Process(context.Background(), src, variant.Descriptor{
		ID:    "abc",
		Scale: &variant.Scale{Width: 60, Height: 60, Fit: variant.FitContain},
	})
	require.NoError(t, err)

	img := decodePNG(t, out)
	_, _, _, top := img.At(30, 0).RGBA()
	_, _, _, middle := img.At(30, 30).RGBA()
	assert.Zero(t, top)
	assert.NotZero(t, middle)
}

func TestProcessCropPercent(t *testing.T) {
	t.Parallel()

	src := gradient(200, 100)
	d := variant.DefaultParser().Parse("abc.crop=10,10,50,50", nil)
	out, err := imageprocessor.Process(context.Background(), encodePNG(t, src), d)
	require.NoError(t, err)

	got := decodePNG(t, out)
	assert.Equal(t, 100, got.Bounds().Dx())
	assert.Equal(t, 50, got.Bounds().Dy())

	// the top-left output pixel is source pixel (20,10)
	r1, g1, b1, _ := src.At(20, 10).RGBA()
	r2, g2, b2, _ := got.At(0, 0).RGBA()
	assert.Equal(t, []uint32{r1, g1, b1}, []uint32{r2, g2, b2})
}

func TestProcessCropDefaultsAndClamp(t *testing.T) {
	t.Parallel()

	src := encodePNG(t, gradient(200, 100))

	out, err := imageprocessor.Process(context.Background(), src, variant.Descriptor{ID: "abc", Crop: &variant.Crop{Left: 50}})
	require.NoError(t, err)
	b := decodePNG(t, out).Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 100, b.Dy())

	out, err = imageprocessor.Process(context.Background(), src, variant.Descriptor{ID: "abc", Crop: &variant.Crop{Left: 80, Width: 50}})
	require.NoError(t, err)
	assert.Equal(t, 40, decodePNG(t, out).Bounds().Dx())

	_, err = imageprocessor.Process(context.Background(), src, variant.Descriptor{ID: "abc", Crop: &variant.Crop{Left: 100}})
	assert.ErrorIs(t, err, apperror.ErrBadDescriptor)
}

func TestProcessScaleThenCrop(t *testing.T) {
	t.Parallel()

	src := encodePNG(t, gradient(400, 200))
	d := variant.DefaultParser().Parse("abc.scale=200,100&crop=10,10,50,50", nil)
	out, err := imageprocessor.Process(context.Background(), src, d)
	require.NoError(t, err)

	b := decodePNG(t, out).Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 50, b.Dy())
}

func TestProcessIconPreset(t *testing.T) {
	t.Parallel()

	d := variant.DefaultParser().Parse("abc.icon", nil)
	out, err := imageprocessor.Process(context.Background(), encodeJPEG(t, gradient(300, 200)), d)
	require.NoError(t, err)

	b := decodePNG(t, out).Bounds()
	assert.Equal(t, 60, b.Dx())
	assert.Equal(t, 60, b.Dy())
}

func TestProcessDecodeError(t *testing.T) {
	t.Parallel()

	_, err := imageprocessor.Process(context.Background(), []byte("definitely not an image"), variant.Descriptor{ID: "abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrImageDecode)

	var procErr *imageprocessor.ImageProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, imageprocessor.OpDecode, procErr.Op)
}

func TestProcessCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := imageprocessor.Process(ctx, encodePNG(t, gradient(10, 10)), variant.Descriptor{ID: "abc"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRotateClockwise(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	// mark the top-left corner red
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	out, err := imageprocessor.Rotate(context.Background(), encodePNG(t, src), 90)
	require.NoError(t, err)

	got := decodePNG(t, out)
	assert.Equal(t, 10, got.Bounds().Dx())
	assert.Equal(t, 20, got.Bounds().Dy())
	// clockwise: top-left moves to top-right
	r, _, _, a := got.At(9, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	jpg := encodeJPEG(t, gradient(300, 100))

	out, err := imageprocessor.Normalize(context.Background(), jpg, variant.Descriptor{ID: "abc"}, 150)
	require.NoError(t, err)
	b := decodePNG(t, out).Bounds()
	assert.Equal(t, 150, b.Dx())
	assert.Equal(t, 50, b.Dy())

	d := variant.DefaultParser().Parse("abc", map[string]string{"crop": "0,0,50,100"})
	out, err = imageprocessor.Normalize(context.Background(), jpg, d, imageprocessor.DefaultMaxWidth)
	require.NoError(t, err)
	w, h, err := imageprocessor.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 150, w)
	assert.Equal(t, 100, h)
}
