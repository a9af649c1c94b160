package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

func TestScreenFile(t *testing.T) {
	pngHead := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name     string
		filename string
		declared string
		data     []byte
		wantErr  bool
	}{
		{"png", "a.png", "image/png", pngHead, false},
		{"pdf", "doc.pdf", "application/pdf", []byte("%PDF-1.7\n"), false},
		{"no name", "", "", pngHead, false},
		{"html by extension", "page.html", "", pngHead, true},
		{"svg by extension", "logo.SVG", "", pngHead, true},
		{"html by content", "photo.jpg", "image/jpeg", []byte("<!DOCTYPE html><html><script>x()</script>"), true},
		{"svg by content", "photo.png", "image/png", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), true},
		{"xml prolog", "data.bin", "", []byte(`<?xml version="1.0"?><svg/>`), true},
		{"declared svg", "x.bin", "image/svg+xml", pngHead, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ScreenFile(tt.filename, tt.declared, tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
