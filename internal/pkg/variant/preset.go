package variant

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Preset is a named shorthand for a scale/crop combination targeting a publishing system.
type Preset struct {
	ID      string `json:"_id" mapstructure:"id"`
	Name    string `json:"name" mapstructure:"name"`
	Options string `json:"options" mapstructure:"options"`

	scale *Scale
	crop  *Crop
}

// DefaultPresets returns the built-in preset table.
func DefaultPresets() []Preset {
	return []Preset{
		{ID: "FB", Name: "Facebook", Options: "scale=600,900,cover"},
		{ID: "OB", Name: "Outbrain", Options: "scale=640,480,cover"},
		{ID: "TW", Name: "X/Twitter", Options: "scale=400,400,cover"},
		{ID: "SEZ", Name: "Sez.us", Options: "scale=400,400,cover"},
		{ID: "icon", Name: "Icon", Options: "scale=60,60,cover"},
		{ID: "original", Name: "Original", Options: ""},
	}
}

// IsIdentity reports whether the preset carries no transformation.
func (p Preset) IsIdentity() bool {
	return p.scale == nil && p.crop == nil
}

func (p *Preset) compile() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("preset without id")
	}
	if strings.ContainsAny(p.ID, "&=./") {
		return fmt.Errorf("preset %q: id must not contain '&', '=', '.' or '/'", p.ID)
	}
	values, err := url.ParseQuery(p.Options)
	if err != nil {
		return fmt.Errorf("preset %q: %w", p.ID, err)
	}
	if raw := values.Get("scale"); raw != "" {
		p.scale = parseScale(raw)
		if p.scale != nil {
			p.scale.fromPreset = true
		}
	}
	if raw := values.Get("crop"); raw != "" {
		p.crop = parseCrop(raw)
		if p.crop != nil {
			p.crop.fromPreset = true
		}
	}
	return nil
}

// Table is an immutable, compiled preset lookup.
type Table struct {
	byID map[string]Preset
}

// NewTable compiles the given presets. Later entries override earlier ones with the same id.
func NewTable(presets ...Preset) (*Table, error) {
	t := &Table{byID: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		if err := p.compile(); err != nil {
			return nil, err
		}
		t.byID[p.ID] = p
	}
	return t, nil
}

// Lookup resolves a preset by id. An exact match wins over a case-insensitive one.
func (t *Table) Lookup(id string) (Preset, bool) {
	if t == nil || id == "" {
		return Preset{}, false
	}
	if p, ok := t.byID[id]; ok {
		return p, true
	}
	for key, p := range t.byID {
		if strings.EqualFold(key, id) {
			return p, true
		}
	}
	return Preset{}, false
}

// List returns the presets sorted by id.
func (t *Table) List() []Preset {
	out := make([]Preset, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
