package engine

import "errors"

// Standard errors reported by the engine.
var (
	// ErrNoConfig indicates no filetype configuration is registered for the
	// requested filetype.
	ErrNoConfig = errors.New("engine: no filetype config registered")

	// ErrUnknownGrammar indicates the configured grammar name is not in the
	// language registry.
	ErrUnknownGrammar = errors.New("engine: unknown grammar")

	// ErrNoHighlightQuery indicates a filetype config carries no highlight
	// query sources.
	ErrNoHighlightQuery = errors.New("engine: filetype config has no highlight queries")

	// ErrParseFailed indicates the parsing library returned no tree.
	ErrParseFailed = errors.New("engine: parse returned no tree")

	// ErrUnknownBuffer indicates an operation referenced an untracked
	// buffer id.
	ErrUnknownBuffer = errors.New("engine: unknown buffer")

	// ErrDuplicateBuffer indicates a buffer id is already tracked.
	ErrDuplicateBuffer = errors.New("engine: buffer already exists")
)
