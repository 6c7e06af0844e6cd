// Package language holds the compiled-in grammar registry, filetype
// detection, and the default filetype parser configurations with their
// embedded highlight and injection queries.
//
// Grammars are compiled into the binary through the tree-sitter language
// binding packages; the registry hands out one shared *Language per name.
// Compiled languages are immutable and safe for concurrent use across any
// number of parsers.
package language

import (
	"sort"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_markdown "github.com/tree-sitter-grammars/tree-sitter-markdown/bindings/go"
	tree_sitter_yaml "github.com/tree-sitter-grammars/tree-sitter-yaml/bindings/go"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_json "github.com/tree-sitter/tree-sitter-json/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var (
	registryOnce sync.Once
	registry     map[string]*sitter.Language
)

// buildRegistry wraps each grammar pointer exactly once.
func buildRegistry() {
	registry = map[string]*sitter.Language{
		"javascript":      sitter.NewLanguage(tree_sitter_javascript.Language()),
		"typescript":      sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		"tsx":             sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		"go":              sitter.NewLanguage(tree_sitter_go.Language()),
		"python":          sitter.NewLanguage(tree_sitter_python.Language()),
		"json":            sitter.NewLanguage(tree_sitter_json.Language()),
		"bash":            sitter.NewLanguage(tree_sitter_bash.Language()),
		"rust":            sitter.NewLanguage(tree_sitter_rust.Language()),
		"css":             sitter.NewLanguage(tree_sitter_css.Language()),
		"html":            sitter.NewLanguage(tree_sitter_html.Language()),
		"yaml":            sitter.NewLanguage(tree_sitter_yaml.Language()),
		"markdown":        sitter.NewLanguage(tree_sitter_markdown.Language()),
		"markdown_inline": sitter.NewLanguage(tree_sitter_markdown.InlineLanguage()),
	}
}

// Lookup returns the compiled grammar registered under name.
func Lookup(name string) (*sitter.Language, bool) {
	registryOnce.Do(buildRegistry)
	lang, ok := registry[name]
	return lang, ok
}

// Names returns all registered grammar names.
func Names() []string {
	registryOnce.Do(buildRegistry)
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
