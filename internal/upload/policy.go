package upload

import (
	"path"
	"strings"

	"apphub/internal/apperr"
)

// Accepts reports whether filename ends with one of the allowed suffixes,
// ignoring case. Suffixes may span several dots (".tar.gz").
func Accepts(filename string, allowList []string) bool {
	lowered := strings.ToLower(filename)
	for _, ext := range allowList {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && strings.HasSuffix(lowered, ext) {
			return true
		}
	}
	return false
}

// MaxFilenameBytes keeps the stored name (64 hex chars, a separator and the
// original name) under common filesystem name limits.
const MaxFilenameBytes = 180

// SanitizeFilename reduces a client-supplied name to its final path element.
// Both slash styles are treated as separators so "..\\..\\x.exe" and
// "../../x.exe" both become "x.exe".
func SanitizeFilename(raw string) (string, error) {
	if strings.ContainsRune(raw, 0) {
		return "", apperr.Validation(apperr.CodeInvalidFilename, "invalid filename")
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "", apperr.Validation(apperr.CodeInvalidFilename, "invalid filename")
	}
	if len(name) > MaxFilenameBytes {
		return "", apperr.Validation(apperr.CodeInvalidFilename, "filename too long")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", apperr.Validation(apperr.CodeInvalidFilename, "invalid filename")
		}
	}
	return name, nil
}
