package language

import (
	"path/filepath"
	"strings"
)

// extFiletypes maps lowercase file extensions to filetype names.
var extFiletypes = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".mts":  "typescript",
	".tsx":  "tsx",
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".json": "json",
	".sh":   "bash",
	".bash": "bash",
	".zsh":  "bash",
	".rs":   "rust",
	".css":  "css",
	".html": "html",
	".htm":  "html",
	".yaml": "yaml",
	".yml":  "yaml",
	".md":   "markdown",
	".mdx":  "markdown",
}

// baseFiletypes maps exact basenames to filetype names, checked before
// extensions.
var baseFiletypes = map[string]string{
	".bashrc":  "bash",
	".zshrc":   "bash",
	".profile": "bash",
	"go.mod":   "go",
}

// DetectFiletype returns the filetype for a path, or "" when unknown.
func DetectFiletype(path string) string {
	base := filepath.Base(path)
	if ft, ok := baseFiletypes[base]; ok {
		return ft
	}
	ext := strings.ToLower(filepath.Ext(base))
	return extFiletypes[ext]
}
