package variant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

func TestParsePaths(t *testing.T) {
	t.Parallel()

	parser := variant.DefaultParser()

	tests := []struct {
		name    string
		raw     string
		options map[string]string
		want    string
	}{
		{name: "bare id is root", raw: "abc", want: "abc.png"},
		{name: "image extension is dropped", raw: "abc.jpg", want: "abc.png"},
		{name: "hierarchical id keeps directories", raw: "acct/class/abc.png", want: "acct/class/abc.png"},
		{name: "preset", raw: "abc.icon", want: "abc.icon.png"},
		{name: "preset with extension", raw: "abc.icon.png", want: "abc.icon.png"},
		{name: "preset is case insensitive", raw: "abc.fb", want: "abc.FB.png"},
		{name: "identity preset resolves to root", raw: "abc.original", want: "abc.png"},
		{name: "unknown preset resolves to root", raw: "abc.nope", want: "abc.png"},
		{name: "explicit scale", raw: "abc.scale=100,50", want: "abc.scale=100,50,cover.png"},
		{name: "scale with fit", raw: "abc.scale=100,50,contain", want: "abc.scale=100,50,contain.png"},
		{name: "single axis scale", raw: "abc.scale=,50", want: "abc.scale=0,50,cover.png"},
		{name: "partial crop", raw: "abc.crop=10,,50", want: "abc.crop=10,,50,.png"},
		{name: "zero and garbage are absent", raw: "abc.scale=0,x", want: "abc.png"},
		{name: "escaped segment", raw: "abc.scale%3D100%2C100%2Ccover", want: "abc.scale=100,100,cover.png"},
		{
			name:    "options used when segment is empty",
			raw:     "abc",
			options: map[string]string{"crop": "10,10,50,50", "scale": "100,100"},
			want:    "abc.scale=100,100,cover&crop=10,10,50,50.png",
		},
		{
			name:    "segment pairs win over options",
			raw:     "abc.scale=10,10",
			options: map[string]string{"crop": "10,10,50,50"},
			want:    "abc.scale=10,10,cover.png",
		},
		{
			name:    "unknown preset ignores options",
			raw:     "abc.nope",
			options: map[string]string{"crop": "10,10,50,50", "scale": "100,100", "preset": "icon"},
			want:    "abc.png",
		},
		{
			name:    "known preset ignores options",
			raw:     "abc.icon",
			options: map[string]string{"scale": "100,100"},
			want:    "abc.icon.png",
		},
		{
			name:    "extension only still reads options",
			raw:     "abc.png",
			options: map[string]string{"scale": "100,100"},
			want:    "abc.scale=100,100,cover.png",
		},
		{
			name:    "preset option",
			raw:     "abc",
			options: map[string]string{"preset": "TW"},
			want:    "abc.TW.png",
		},
		{name: "explicit crop on top of preset", raw: "abc.icon&crop=10,10,50,50", want: "abc.icon&crop=10,10,50,50.png"},
		{name: "overridden preset collapses", raw: "abc.icon&scale=10,10", want: "abc.scale=10,10,cover.png"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parser.Parse(tc.raw, tc.options).Path())
		})
	}
}

func TestParseOrderIndependent(t *testing.T) {
	t.Parallel()

	parser := variant.DefaultParser()
	a := parser.Parse("abc.crop=10,10,50,50&scale=100,100,cover", nil)
	b := parser.Parse("abc.scale=100,100,cover&crop=10,10,50,50", nil)

	assert.Equal(t, a.Path(), b.Path())
	assert.Equal(t, "abc.scale=100,100,cover&crop=10,10,50,50.png", a.Path())
}

func TestParseRootPath(t *testing.T) {
	t.Parallel()

	parser := variant.DefaultParser()
	for _, raw := range []string{"abc", "abc.png", "abc.original", "abc.gif"} {
		d := parser.Parse(raw, nil)
		assert.True(t, d.IsRoot(), raw)
		assert.Equal(t, "abc.png", d.Path(), raw)
		assert.Equal(t, "abc.png", d.RootPath(), raw)
	}
}

func TestParsePresetComponents(t *testing.T) {
	t.Parallel()

	d := variant.DefaultParser().Parse("abc.icon", nil)
	require.NotNil(t, d.Scale)
	assert.Equal(t, "icon", d.Preset)
	assert.Equal(t, 60, d.Scale.Width)
	assert.Equal(t, 60, d.Scale.Height)
	assert.Equal(t, variant.FitCover, d.Scale.Fit)
	assert.Nil(t, d.Crop)
	assert.Equal(t, "icon", d.Spec())
}

func TestParseSpecRoundTrip(t *testing.T) {
	t.Parallel()

	parser := variant.DefaultParser()
	for _, raw := range []string{
		"acct/abc.icon",
		"acct/abc.scale=100,0,scaleToFit",
		"acct/abc.FB&crop=,10,,50",
	} {
		d := parser.Parse(raw, nil)
		rebuilt := parser.ParseSpec(d.ID, d.Spec())
		assert.Equal(t, d.Path(), rebuilt.Path(), raw)
	}
	assert.True(t, parser.ParseSpec("abc", "").IsRoot())
}

func TestRootID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", variant.RootID("abc.png"))
	assert.Equal(t, "acct/abc", variant.RootID("acct/abc.icon.png"))
	assert.Equal(t, "acct/class/abc", variant.RootID("acct/class/abc.scale=1,1,cover&crop=1,1,1,1.png"))
	assert.Equal(t, "abc", variant.RootID("abc"))
}

func TestParseFit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, variant.FitCover, variant.ParseFit(""))
	assert.Equal(t, variant.FitCover, variant.ParseFit("weird"))
	assert.Equal(t, variant.FitContain, variant.ParseFit("Contain"))
	assert.Equal(t, variant.FitScaleToFit, variant.ParseFit("scaletofit"))
}

func TestNewTableOverrides(t *testing.T) {
	t.Parallel()

	table, err := variant.NewTable(append(variant.DefaultPresets(), variant.Preset{ID: "icon", Name: "Icon", Options: "scale=32,32,contain"})...)
	require.NoError(t, err)

	d := variant.NewParser(table).Parse("abc.icon", nil)
	require.NotNil(t, d.Scale)
	assert.Equal(t, 32, d.Scale.Width)
	assert.Equal(t, variant.FitContain, d.Scale.Fit)

	_, err = variant.NewTable(variant.Preset{ID: "bad.id", Options: "scale=1,1"})
	assert.Error(t, err)
}
