package imageprocessor

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

func init() {
	// Register Nikon and Canon maker notes
	exif.RegisterParsers(mknote.All...)
}

// CapturedAt returns the EXIF capture time of an encoded image.
// ok is false when the image carries no usable timestamp.
func CapturedAt(src []byte) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		// Most PNG/GIF uploads have no EXIF block
		log.Debugf("[ImageProcessor] No EXIF data found: %v", err)
		return time.Time{}, false
	}
	ts, err := x.DateTime()
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
