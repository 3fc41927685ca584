package core

import (
	"path"
	"strings"
	"unicode"
)

// DefaultFilename names uploads that arrive without a usable name.
const DefaultFilename = "data.csv"

// ExportPrefix is prepended to the original filename on download.
const ExportPrefix = "reordered_"

// cleanFilename reduces a client-supplied name to its base name and strips
// control characters and quotes so it is safe in a Content-Disposition header.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == "/" {
		return DefaultFilename
	}
	return name
}

// exportFilename returns the download name for a loaded file.
func exportFilename(name string) string {
	return ExportPrefix + cleanFilename(name)
}
