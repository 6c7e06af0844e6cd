package language

import (
	"embed"

	"github.com/mosaicterm/treelight/internal/syntax"
)

//go:embed queries
var queryFS embed.FS

// infoStringLanguages maps common fenced-code-block info strings to grammar
// names. An info string missing from this table is used as the language name
// verbatim.
var infoStringLanguages = map[string]string{
	"js":         "javascript",
	"jsx":        "javascript",
	"node":       "javascript",
	"ts":         "typescript",
	"golang":     "go",
	"py":         "python",
	"python3":    "python",
	"sh":         "bash",
	"shell":      "bash",
	"zsh":        "bash",
	"rs":         "rust",
	"yml":        "yaml",
	"jsonc":      "json",
	"typescript": "typescript",
}

// DefaultConfigs returns the built-in filetype configurations with their
// embedded queries. Callers register these with the engine; applications can
// override any of them by registering the same filetype again.
func DefaultConfigs() []syntax.FiletypeConfig {
	configs := []syntax.FiletypeConfig{
		builtin("javascript", nil),
		builtin("typescript", nil),
		{
			Filetype:         "tsx",
			Grammar:          "tsx",
			HighlightQueries: queries("typescript", "highlights"),
		},
		builtin("go", nil),
		builtin("python", nil),
		builtin("json", nil),
		builtin("bash", nil),
		builtin("rust", nil),
		builtin("css", nil),
		{
			Filetype:         "html",
			HighlightQueries: queries("html", "highlights"),
			InjectionQueries: queries("html", "injections"),
			InjectionNodeTypes: map[string]string{
				"script_element": "javascript",
				"style_element":  "css",
			},
		},
		builtin("yaml", nil),
		{
			Filetype:            "markdown",
			HighlightQueries:    queries("markdown", "highlights"),
			InjectionQueries:    queries("markdown", "injections"),
			InfoStringLanguages: infoStringLanguages,
		},
	}
	return configs
}

// builtin assembles a config whose queries live under queries/<filetype>/.
func builtin(filetype string, injectionNodeTypes map[string]string) syntax.FiletypeConfig {
	return syntax.FiletypeConfig{
		Filetype:           filetype,
		HighlightQueries:   queries(filetype, "highlights"),
		InjectionNodeTypes: injectionNodeTypes,
	}
}

// queries loads an embedded query file as an inline source. A missing file
// yields no sources rather than an error: not every filetype ships every
// query kind.
func queries(dir, kind string) []syntax.QuerySource {
	data, err := queryFS.ReadFile("queries/" + dir + "/" + kind + ".scm")
	if err != nil || len(data) == 0 {
		return nil
	}
	return []syntax.QuerySource{{
		Name:   dir + "/" + kind + ".scm",
		Inline: string(data),
	}}
}
