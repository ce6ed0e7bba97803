package workspace

import (
	"path/filepath"
	"strings"
)

// languageByExt maps file extensions to editor language identifiers.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".html":  "html",
	".htm":   "html",
	".css":   "css",
	".scss":  "scss",
	".less":  "less",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".proto": "protobuf",
	".lua":   "lua",
	".r":     "r",
	".ex":    "elixir",
	".exs":   "elixir",
	".vue":   "vue",
}

// specialNames maps extensionless filenames to languages.
var specialNames = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
	"go.mod":     "go.mod",
	"go.sum":     "go.sum",
}

// LanguageFor returns the editor language identifier for a path, or
// empty when unknown.
func LanguageFor(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := specialNames[base]; ok {
		return lang
	}
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return ""
}
