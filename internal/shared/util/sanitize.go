package util

import (
	"errors"
	"strings"
)

var errInvalidName = errors.New("invalid file name")

// SanitizeFileName removes path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errInvalidName
	}
	return s, nil
}

// IsSafeSegment reports whether s can be used verbatim as a single path
// segment, i.e. it is non-empty and cannot escape its parent directory.
func IsSafeSegment(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	if strings.Contains(s, "..") || strings.ContainsAny(s, "/\\\x00") {
		return false
	}
	return true
}
