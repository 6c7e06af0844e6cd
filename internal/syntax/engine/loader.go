package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mosaicterm/treelight/internal/syntax"
	"github.com/mosaicterm/treelight/internal/syntax/assets"
	"github.com/mosaicterm/treelight/internal/syntax/language"
)

// loadedParser is a fully built filetype parser: the grammar plus its
// compiled highlight and injection queries and injection routing tables.
type loadedParser struct {
	filetype   string
	language   *sitter.Language
	highlights *loadedQuery

	// injections is nil for filetypes without injection queries.
	injections *loadedQuery

	injectionNodeTypes  map[string]string
	infoStringLanguages map[string]string
}

func (p *loadedParser) close() {
	p.highlights.close()
	p.injections.close()
}

// reusableParser is a long-lived parser instance for one injected language,
// shared across every injection site of that language.
type reusableParser struct {
	parser *sitter.Parser
	loaded *loadedParser
}

func (p *reusableParser) close() {
	if p.parser != nil {
		p.parser.Close()
		p.parser = nil
	}
}

// inflightLoad tracks one in-progress build so duplicate demand can wait on
// it instead of building again.
type inflightLoad[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// loader builds and caches filetype parsers and reusable injected parsers.
//
// The engine actor is the only writer during steady state, but loads are
// also reachable from facade-side preloading paths in tests, so the maps are
// guarded by a mutex. Builds happen outside the lock; the in-flight map
// guarantees a given filetype is built at most once concurrently, and
// failed builds are never cached.
type loader struct {
	assets assets.Provider
	log    *log.Logger

	mu       sync.Mutex
	configs  map[string]syntax.FiletypeConfig
	loaded   map[string]*loadedParser
	inflight map[string]*inflightLoad[*loadedParser]

	reusable       map[string]*reusableParser
	reusableFlight map[string]*inflightLoad[*reusableParser]
}

func newLoader(provider assets.Provider, logger *log.Logger) *loader {
	return &loader{
		assets:         provider,
		log:            logger,
		configs:        make(map[string]syntax.FiletypeConfig),
		loaded:         make(map[string]*loadedParser),
		inflight:       make(map[string]*inflightLoad[*loadedParser]),
		reusable:       make(map[string]*reusableParser),
		reusableFlight: make(map[string]*inflightLoad[*reusableParser]),
	}
}

// Register records a filetype configuration. Later registrations for the
// same filetype replace earlier ones but do not invalidate an already built
// parser; use ClearCache for that.
func (l *loader) Register(cfg syntax.FiletypeConfig) {
	l.mu.Lock()
	l.configs[cfg.Filetype] = cfg
	l.mu.Unlock()
}

// HasConfig reports whether a configuration is registered for filetype.
func (l *loader) HasConfig(filetype string) bool {
	l.mu.Lock()
	_, ok := l.configs[filetype]
	l.mu.Unlock()
	return ok
}

// Resolve returns the loaded parser for filetype, building it on first use.
// Concurrent resolves for the same filetype share a single build.
func (l *loader) Resolve(ctx context.Context, filetype string) (*loadedParser, error) {
	l.mu.Lock()
	if p, ok := l.loaded[filetype]; ok {
		l.mu.Unlock()
		return p, nil
	}
	if fl, ok := l.inflight[filetype]; ok {
		l.mu.Unlock()
		select {
		case <-fl.done:
			return fl.result, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflightLoad[*loadedParser]{done: make(chan struct{})}
	l.inflight[filetype] = fl
	cfg, hasCfg := l.configs[filetype]
	l.mu.Unlock()

	if !hasCfg {
		fl.err = fmt.Errorf("%w: %s", ErrNoConfig, filetype)
	} else {
		fl.result, fl.err = l.build(ctx, cfg)
	}

	l.mu.Lock()
	delete(l.inflight, filetype)
	if fl.err == nil {
		l.loaded[filetype] = fl.result
	}
	l.mu.Unlock()
	close(fl.done)

	if fl.err != nil {
		l.log.Warn("parser load failed", "filetype", filetype, "err", fl.err)
	}
	return fl.result, fl.err
}

// ResolveReusable returns the shared parser instance for an injected
// language, creating it on first use with the same single-build discipline
// as Resolve. The language name must itself be a registered filetype.
func (l *loader) ResolveReusable(ctx context.Context, lang string) (*reusableParser, error) {
	l.mu.Lock()
	if p, ok := l.reusable[lang]; ok {
		l.mu.Unlock()
		return p, nil
	}
	if fl, ok := l.reusableFlight[lang]; ok {
		l.mu.Unlock()
		select {
		case <-fl.done:
			return fl.result, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflightLoad[*reusableParser]{done: make(chan struct{})}
	l.reusableFlight[lang] = fl
	l.mu.Unlock()

	loaded, err := l.Resolve(ctx, lang)
	if err == nil {
		var parser *sitter.Parser
		parser, err = newParserFor(loaded.language)
		if err == nil {
			fl.result = &reusableParser{parser: parser, loaded: loaded}
		}
	}
	fl.err = err

	l.mu.Lock()
	delete(l.reusableFlight, lang)
	if fl.err == nil {
		l.reusable[lang] = fl.result
	}
	l.mu.Unlock()
	close(fl.done)
	return fl.result, fl.err
}

// ClearCache drops loaded parsers, reusable injected parsers, and the asset
// cache. In-flight builds finish against the old state; live buffer trees
// are untouched.
func (l *loader) ClearCache() error {
	l.mu.Lock()
	loaded := l.loaded
	reusable := l.reusable
	l.loaded = make(map[string]*loadedParser)
	l.reusable = make(map[string]*reusableParser)
	l.mu.Unlock()

	for _, p := range reusable {
		p.close()
	}
	for _, p := range loaded {
		p.close()
	}
	return l.assets.ClearCache()
}

// Close releases every cached parser and query.
func (l *loader) Close() {
	l.mu.Lock()
	loaded := l.loaded
	reusable := l.reusable
	l.loaded = make(map[string]*loadedParser)
	l.reusable = make(map[string]*reusableParser)
	l.mu.Unlock()

	for _, p := range reusable {
		p.close()
	}
	for _, p := range loaded {
		p.close()
	}
}

// build assembles a loadedParser from its configuration: grammar lookup,
// asset loads, and query compilation.
func (l *loader) build(ctx context.Context, cfg syntax.FiletypeConfig) (*loadedParser, error) {
	lang, ok := language.Lookup(cfg.GrammarName())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGrammar, cfg.GrammarName())
	}
	if len(cfg.HighlightQueries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHighlightQuery, cfg.Filetype)
	}

	highlights, err := l.compileQuery(ctx, lang, cfg.HighlightQueries)
	if err != nil {
		return nil, fmt.Errorf("highlight query for %s: %w", cfg.Filetype, err)
	}

	var injections *loadedQuery
	if len(cfg.InjectionQueries) > 0 {
		injections, err = l.compileQuery(ctx, lang, cfg.InjectionQueries)
		if err != nil {
			highlights.close()
			return nil, fmt.Errorf("injection query for %s: %w", cfg.Filetype, err)
		}
	}

	return &loadedParser{
		filetype:            cfg.Filetype,
		language:            lang,
		highlights:          highlights,
		injections:          injections,
		injectionNodeTypes:  cfg.InjectionNodeTypes,
		infoStringLanguages: cfg.InfoStringLanguages,
	}, nil
}

// compileQuery loads and concatenates the query sources, compiles them, and
// extracts per-pattern conceal properties.
func (l *loader) compileQuery(ctx context.Context, lang *sitter.Language, sources []syntax.QuerySource) (*loadedQuery, error) {
	var sb strings.Builder
	for _, src := range sources {
		data, err := l.assets.Load(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.Name, err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}

	q, qerr := sitter.NewQuery(lang, sb.String())
	if qerr != nil {
		return nil, fmt.Errorf("compile query: %s", qerr.Error())
	}

	lq := &loadedQuery{
		query: q,
		names: q.CaptureNames(),
		props: make(map[uint]patternProps),
	}
	for i := uint(0); i < q.PatternCount(); i++ {
		for _, prop := range q.PropertySettings(i) {
			val := ""
			if prop.Value != nil {
				val = *prop.Value
			}
			pp := lq.props[i]
			switch prop.Key {
			case "conceal":
				v := val
				pp.conceal = &v
			case "conceal_lines":
				v := val
				pp.concealLines = &v
			default:
				continue
			}
			lq.props[i] = pp
		}
	}
	return lq, nil
}

// newParserFor creates a parser configured for lang.
func newParserFor(lang *sitter.Language) (*sitter.Parser, error) {
	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		p.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	return p, nil
}
