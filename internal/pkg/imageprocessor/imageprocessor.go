package imageprocessor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// DefaultMaxWidth is the widest root image kept after upload normalization.
const DefaultMaxWidth = 2048

// PNGContentType is the MIME type of every image this package produces.
const PNGContentType = "image/png"

// Process renders the variant described by d from the encoded root image.
// The result is always PNG. Identity descriptors return the root pixels unchanged.
func Process(ctx context.Context, src []byte, d variant.Descriptor) ([]byte, error) {
	img, err := decode(src)
	if err != nil {
		return nil, err
	}
	out, err := transform(img, d)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encode(out)
}

// Rotate turns the image clockwise by degrees. Uncovered corners are transparent.
func Rotate(ctx context.Context, src []byte, degrees float64) ([]byte, error) {
	img, err := decode(src)
	if err != nil {
		return nil, err
	}
	// imaging rotates counter-clockwise
	out := imaging.Rotate(img, -degrees, color.Transparent)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encode(out)
}

// Normalize prepares an uploaded image for storage as root: the optional initial
// descriptor is applied, images wider than maxWidth are scaled down and the result
// is encoded as PNG.
func Normalize(ctx context.Context, src []byte, d variant.Descriptor, maxWidth int) ([]byte, error) {
	img, err := decode(src)
	if err != nil {
		return nil, err
	}
	out, err := transform(img, d)
	if err != nil {
		return nil, err
	}
	if maxWidth > 0 && out.Bounds().Dx() > maxWidth {
		log.Infof("[ImageProcessor] Downscaling upload from %dpx to %dpx", out.Bounds().Dx(), maxWidth)
		out = imaging.Resize(out, maxWidth, 0, imaging.Lanczos)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encode(out)
}

// Dimensions returns the pixel size of an encoded image without decoding all pixels.
func Dimensions(src []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return 0, 0, &ImageProcessingError{Op: OpDecode, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

func transform(img image.Image, d variant.Descriptor) (image.Image, error) {
	if d.Scale != nil {
		img = scale(img, *d.Scale)
	}
	if d.Crop != nil {
		var err error
		if img, err = crop(img, *d.Crop); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func scale(img image.Image, s variant.Scale) image.Image {
	w, h := s.Width, s.Height
	switch {
	case w > 0 && h > 0:
		switch s.Fit {
		case variant.FitContain:
			fw, fh := fitDimensions(img.Bounds(), w, h)
			canvas := imaging.New(w, h, color.NRGBA{})
			return imaging.PasteCenter(canvas, imaging.Resize(img, fw, fh, imaging.Lanczos))
		case variant.FitScaleToFit:
			fw, fh := fitDimensions(img.Bounds(), w, h)
			return imaging.Resize(img, fw, fh, imaging.Lanczos)
		default:
			return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
		}
	case w > 0:
		return imaging.Resize(img, w, 0, imaging.Lanczos)
	case h > 0:
		return imaging.Resize(img, 0, h, imaging.Lanczos)
	}
	return img
}

// fitDimensions returns the largest size with the source aspect ratio inside w x h.
func fitDimensions(b image.Rectangle, w, h int) (int, int) {
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if sw == 0 || sh == 0 {
		return w, h
	}
	ratio := math.Min(float64(w)/sw, float64(h)/sh)
	fw := int(math.Max(1, math.Round(sw*ratio)))
	fh := int(math.Max(1, math.Round(sh*ratio)))
	return fw, fh
}

// crop cuts a rectangle given in percent of the current image. Missing left/top default
// to 0, missing width/height to the rest of the image. Bounds are clamped to the image.
func crop(img image.Image, c variant.Crop) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	left := clamp(percentOf(w, c.Left), 0, w)
	top := clamp(percentOf(h, c.Top), 0, h)
	width := w - left
	if c.Width > 0 {
		width = percentOf(w, c.Width)
	}
	height := h - top
	if c.Height > 0 {
		height = percentOf(h, c.Height)
	}
	width = clamp(width, 0, w-left)
	height = clamp(height, 0, h-top)
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: crop %s leaves an empty image", apperror.ErrBadDescriptor, c.String())
	}

	rect := image.Rect(left, top, left+width, top+height).Add(b.Min)
	return imaging.Crop(img, rect), nil
}

func percentOf(dim, pct int) int {
	return int(math.Round(float64(dim) * float64(pct) / 100))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func decode(src []byte) (image.Image, error) {
	if len(src) == 0 {
		return nil, &ImageProcessingError{Op: OpDecode, Err: fmt.Errorf("empty input")}
	}
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageProcessingError{Op: OpDecode, Err: err}
	}
	return img, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, &ImageProcessingError{Op: OpEncode, Err: err}
	}
	return buf.Bytes(), nil
}
