package variant

import (
	"net/url"
	"strconv"
	"strings"
)

var imageExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "webp": {}, "bmp": {}, "tif": {}, "tiff": {},
}

// Parser turns a requested id plus request options into a Descriptor.
type Parser struct {
	presets *Table
}

// NewParser creates a parser over the given preset table. A nil table means no presets.
func NewParser(presets *Table) *Parser {
	if presets == nil {
		presets = &Table{byID: map[string]Preset{}}
	}
	return &Parser{presets: presets}
}

// DefaultParser returns a parser over the built-in presets.
func DefaultParser() *Parser {
	t, err := NewTable(DefaultPresets()...)
	if err != nil {
		panic(err)
	}
	return NewParser(t)
}

// Presets returns the preset table backing the parser.
func (p *Parser) Presets() *Table {
	return p.presets
}

// Parse splits rawID into base id and descriptor segment and resolves presets, crop and
// scale. Key/value pairs in the descriptor segment win over options as a whole; options
// only contribute crop, scale and preset when the segment carries none of its own.
// Parse never fails: malformed components are treated as absent.
func (p *Parser) Parse(rawID string, options map[string]string) Descriptor {
	id, segment := splitID(rawID)

	pairs := map[string]string{}
	presetName := ""
	for _, token := range strings.Split(segment, "&") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if key, value, ok := strings.Cut(token, "="); ok {
			pairs[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
			continue
		}
		if presetName == "" {
			presetName = token
		}
	}
	// query options only describe a bare id; any segment, even an unknown preset, wins
	if strings.TrimSpace(segment) == "" {
		for _, key := range []string{"crop", "scale"} {
			if v := strings.TrimSpace(options[key]); v != "" {
				pairs[key] = v
			}
		}
		presetName = strings.TrimSpace(options["preset"])
	}

	d := Descriptor{ID: id}
	if preset, ok := p.presets.Lookup(presetName); ok && !preset.IsIdentity() {
		d.Preset = preset.ID
		d.Scale = cloneScale(preset.scale)
		d.Crop = cloneCrop(preset.crop)
	}
	if s := parseScale(pairs["scale"]); s != nil {
		d.Scale = s
	}
	if c := parseCrop(pairs["crop"]); c != nil {
		d.Crop = c
	}
	// fully overridden presets collapse to the explicit spec
	if d.Preset != "" && !presetContributes(d) {
		d.Preset = ""
	}
	return d
}

// ParseSpec rebuilds a descriptor from a base id and a canonical spec fragment as
// stored in the variant registry.
func (p *Parser) ParseSpec(id, spec string) Descriptor {
	if spec == "" {
		return Descriptor{ID: id}
	}
	return p.Parse(id+"."+spec, nil)
}

// RootID strips the descriptor segment and extension from a stored path.
func RootID(path string) string {
	id, _ := splitID(path)
	return id
}

// splitID separates "<dir>/<base>.<segment>.<ext>" into "<dir>/<base>" and the
// unescaped segment. Only known image extensions are dropped.
func splitID(raw string) (string, string) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	slash := strings.LastIndex(raw, "/")
	dir, name := raw[:slash+1], raw[slash+1:]

	dot := strings.Index(name, ".")
	if dot < 0 {
		return dir + name, ""
	}
	base, rest := name[:dot], name[dot+1:]
	if last := strings.LastIndex(rest, "."); last >= 0 {
		if _, ok := imageExtensions[strings.ToLower(rest[last+1:])]; ok {
			rest = rest[:last]
		}
	} else if _, ok := imageExtensions[strings.ToLower(rest)]; ok {
		rest = ""
	}
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	return dir + base, rest
}

func parseScale(raw string) *Scale {
	if raw == "" {
		return nil
	}
	fields := strings.Split(raw, ",")
	s := &Scale{Width: field(fields, 0), Height: field(fields, 1), Fit: FitCover}
	if len(fields) > 2 {
		s.Fit = ParseFit(fields[2])
	}
	if s.Width == 0 && s.Height == 0 {
		return nil
	}
	return s
}

func parseCrop(raw string) *Crop {
	if raw == "" {
		return nil
	}
	fields := strings.Split(raw, ",")
	c := &Crop{Left: field(fields, 0), Top: field(fields, 1), Width: field(fields, 2), Height: field(fields, 3)}
	if *c == (Crop{}) {
		return nil
	}
	return c
}

// field returns the positive integer at index i, or 0 when missing or malformed.
func field(fields []string, i int) int {
	if i >= len(fields) {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func presetContributes(d Descriptor) bool {
	return (d.Scale != nil && d.Scale.fromPreset) || (d.Crop != nil && d.Crop.fromPreset)
}

func cloneScale(s *Scale) *Scale {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneCrop(c *Crop) *Crop {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}
