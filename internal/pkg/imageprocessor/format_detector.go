package imageprocessor

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/utils"
)

// DetectContentType determines the MIME type of an upload. The declared type wins
// unless it is empty or generic, then the file extension and finally the content sniffer.
func DetectContentType(declared, filename string, data []byte) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return strings.ToLower(declared)
	}
	if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext != "" {
		if mime := utils.GetMIME(ext); mime != "" && mime != "application/octet-stream" {
			return mime
		}
	}
	return http.DetectContentType(data)
}

// IsImage reports whether the MIME type is an image this package can decode.
// SVG is vector data and stored as-is.
func IsImage(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "image/svg")
}

// Extension returns the file extension (without dot) to store non-image uploads under.
func Extension(filename, contentType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		return ext
	}
	if i := strings.LastIndex(contentType, "/"); i >= 0 && i < len(contentType)-1 {
		sub := contentType[i+1:]
		if j := strings.IndexAny(sub, "+;"); j >= 0 {
			sub = sub[:j]
		}
		return sub
	}
	return "bin"
}
