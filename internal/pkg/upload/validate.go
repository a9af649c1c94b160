package upload

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// blocked extensions are served by browsers as active content
var blockedExt = map[string]bool{
	".html":  true,
	".htm":   true,
	".xhtml": true,
	".svg":   true,
	".svgz":  true,
	".xml":   true,
}

// ScreenFile rejects uploads that a browser would execute when served from the media
// domain: HTML, XHTML, XML and SVG, judged by extension and by the leading bytes.
// Other binary types pass; images are decoded and re-encoded later anyway.
func ScreenFile(filename, declaredType string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if blockedExt[ext] {
		return fmt.Errorf("%w: %s files are not accepted", apperror.ErrInvalidInput, ext)
	}

	declared := strings.ToLower(strings.TrimSpace(declaredType))
	if isScriptable(declared) {
		return fmt.Errorf("%w: content type %s is not accepted", apperror.ErrInvalidInput, declared)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if detected := http.DetectContentType(head); isScriptable(detected) {
		return fmt.Errorf("%w: detected %s content", apperror.ErrInvalidInput, detected)
	}
	// DetectContentType reports SVG as text/xml only with a prolog
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return fmt.Errorf("%w: svg content is not accepted", apperror.ErrInvalidInput)
	}
	return nil
}

func isScriptable(contentType string) bool {
	return strings.HasPrefix(contentType, "text/html") ||
		strings.HasPrefix(contentType, "application/xhtml") ||
		strings.HasPrefix(contentType, "text/xml") ||
		strings.HasPrefix(contentType, "application/xml") ||
		strings.HasPrefix(contentType, "image/svg+xml")
}
