package variant

import (
	"strconv"
	"strings"
)

// Fit controls how a two-axis scale maps the source onto the target box.
type Fit string

const (
	FitCover      Fit = "cover"
	FitContain    Fit = "contain"
	FitScaleToFit Fit = "scaleToFit"
)

// RootExt is the extension every stored image object carries.
const RootExt = ".png"

// ParseFit normalizes a fit token. Unknown or empty values fall back to cover.
func ParseFit(raw string) Fit {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "contain":
		return FitContain
	case "scaletofit", "inside", "fit":
		return FitScaleToFit
	default:
		return FitCover
	}
}

// Scale is a target size in pixels. Zero means the axis is unconstrained.
type Scale struct {
	Width  int
	Height int
	Fit    Fit

	fromPreset bool
}

// Crop is a rectangle in percent of the post-scale image. Zero means the field was not given.
type Crop struct {
	Left   int
	Top    int
	Width  int
	Height int

	fromPreset bool
}

// Descriptor identifies one renderable variant of a media item.
type Descriptor struct {
	ID     string
	Preset string
	Scale  *Scale
	Crop   *Crop
}

// IsRoot reports whether the descriptor addresses the untransformed original.
func (d Descriptor) IsRoot() bool {
	return d.Scale == nil && d.Crop == nil
}

// Spec returns the canonical spec fragment: preset name first, then explicit scale, then
// explicit crop. Components that came from the preset are implied by its name.
func (d Descriptor) Spec() string {
	if d.IsRoot() {
		return ""
	}
	parts := make([]string, 0, 3)
	if d.Preset != "" {
		parts = append(parts, d.Preset)
	}
	if d.Scale != nil && !d.Scale.fromPreset {
		parts = append(parts, "scale="+d.Scale.String())
	}
	if d.Crop != nil && !d.Crop.fromPreset {
		parts = append(parts, "crop="+d.Crop.String())
	}
	return strings.Join(parts, "&")
}

// Path returns the storage path of the variant relative to the key prefix.
func (d Descriptor) Path() string {
	spec := d.Spec()
	if spec == "" {
		return d.RootPath()
	}
	return d.ID + "." + spec + RootExt
}

// RootPath returns the storage path of the original.
func (d Descriptor) RootPath() string {
	return d.ID + RootExt
}

// Root returns the descriptor of the original this variant derives from.
func (d Descriptor) Root() Descriptor {
	return Descriptor{ID: d.ID}
}

func (s Scale) String() string {
	return strconv.Itoa(s.Width) + "," + strconv.Itoa(s.Height) + "," + string(s.Fit)
}

func (c Crop) String() string {
	return optInt(c.Left) + "," + optInt(c.Top) + "," + optInt(c.Width) + "," + optInt(c.Height)
}

func optInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
