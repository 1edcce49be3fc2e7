package utils

import (
	"path"
	"strings"
)

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	if clean == "" || clean == "." || clean == "/" {
		return "download"
	}
	return clean
}

// FilenameFromKey returns a download filename for an object key.
func FilenameFromKey(key string) string {
	return SanitizeHeaderFilename(path.Base(key))
}
