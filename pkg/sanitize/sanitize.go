// Package sanitize cleans user supplied text before it is stored.
package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// MessageText removes control characters from chat text while keeping line
// breaks and tabs.
func MessageText(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\t' {
			result.WriteRune(r)
			continue
		}
		if r == '\r' || unicode.IsControl(r) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// Filename reduces an uploaded file name to its base name without control
// characters. It returns "" when nothing usable is left.
func Filename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = controlChars.ReplaceAllString(filename, "")
	filename = path.Base(filename)
	if filename == "." || filename == "/" || filename == ".." {
		return ""
	}
	return filename
}
