package syntax

// QuerySource identifies one query file for a filetype. Exactly one of Path
// or Inline is normally set: Path is resolved by the asset provider relative
// to the data root (absolute paths are used as-is), Inline carries the query
// text directly. Name labels the source in logs and cache keys.
type QuerySource struct {
	Name   string
	Path   string
	Inline string
}

// FiletypeConfig describes how to build a parser for one filetype: which
// grammar to use and which highlight and injection queries to load.
//
// Configs may be registered at any time before the filetype is first used.
// The last registration for a filetype wins.
type FiletypeConfig struct {
	// Filetype is the name buffers and one-shot requests are tagged with,
	// e.g. "javascript".
	Filetype string

	// Grammar names the compiled grammar in the language registry. When
	// empty, Filetype is used.
	Grammar string

	// HighlightQueries are concatenated in order into the filetype's
	// highlight query.
	HighlightQueries []QuerySource

	// InjectionQueries are concatenated in order into the filetype's
	// injection query. Empty means the filetype hosts no injections.
	InjectionQueries []QuerySource

	// InjectionNodeTypes maps a node type captured by the injection query
	// directly to a target language, e.g. "script_element" -> "javascript".
	InjectionNodeTypes map[string]string

	// InfoStringLanguages maps a fenced code block's info string to a
	// language, e.g. "js" -> "javascript". An unmapped info string is used
	// as the language name verbatim.
	InfoStringLanguages map[string]string
}

// GrammarName returns the language registry name for the config.
func (c FiletypeConfig) GrammarName() string {
	if c.Grammar != "" {
		return c.Grammar
	}
	return c.Filetype
}
