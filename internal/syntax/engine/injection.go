package engine

import (
	"context"
	"sort"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// injectionSite is one resolved region of embedded sub-language content.
type injectionSite struct {
	start      uint
	end        uint
	startPoint syntax.Point
	language   string
}

// collectInjectionSites runs the host's injection query and resolves each
// content capture to a sub-language. Resolution order: the configured
// node-type table (checked against the node and its parent), then the
// match's language capture filtered through the info-string table, then the
// raw captured language text.
func collectInjectionSites(loaded *loadedParser, root *sitter.Node, source []byte) []injectionSite {
	if loaded.injections == nil {
		return nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()

	var sites []injectionSite
	matches := qc.Matches(loaded.injections.query, root, source)
	for m := matches.Next(); m != nil; m = matches.Next() {
		matchLang := ""
		var contentIdx []int
		for i, qcap := range m.Captures {
			switch loaded.injections.names[qcap.Index] {
			case "injection.language", "language":
				n := qcap.Node
				matchLang = string(source[n.StartByte():n.EndByte()])
			case "injection.content", "content":
				contentIdx = append(contentIdx, i)
			}
		}
		for _, i := range contentIdx {
			n := m.Captures[i].Node
			lang := resolveInjectionLanguage(loaded, &n, matchLang)
			if lang == "" {
				continue
			}
			start, end := uint(n.StartByte()), uint(n.EndByte())
			if end <= start {
				continue
			}
			sites = append(sites, injectionSite{
				start:      start,
				end:        end,
				startPoint: pointOf(n.StartPosition()),
				language:   lang,
			})
		}
	}
	return sites
}

func resolveInjectionLanguage(loaded *loadedParser, n *sitter.Node, matchLang string) string {
	if lang, ok := loaded.injectionNodeTypes[n.Kind()]; ok {
		return lang
	}
	if parent := n.Parent(); parent != nil {
		if lang, ok := loaded.injectionNodeTypes[parent.Kind()]; ok {
			return lang
		}
	}
	if matchLang == "" {
		return ""
	}
	if mapped, ok := loaded.infoStringLanguages[matchLang]; ok {
		return mapped
	}
	return matchLang
}

// processInjections parses every injection site with the sub-language's
// reusable parser, highlights the sub-trees, and remaps the resulting
// captures into host coordinates. It returns the remapped captures and the
// host byte ranges per sub-language.
//
// Injection failures are advisory: a sub-language that cannot be loaded or
// parsed is logged and skipped, leaving the host's own captures intact.
func (e *Engine) processInjections(ctx context.Context, loaded *loadedParser, root *sitter.Node, source []byte) ([]capture, map[string][]byteRange) {
	sites := collectInjectionSites(loaded, root, source)
	if len(sites) == 0 {
		return nil, nil
	}

	// Group by language so each reusable parser is resolved once, in a
	// stable order.
	byLang := make(map[string][]injectionSite)
	for _, s := range sites {
		byLang[s.language] = append(byLang[s.language], s)
	}
	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var out []capture
	ranges := make(map[string][]byteRange)
	for _, lang := range langs {
		rp, err := e.loader.ResolveReusable(ctx, lang)
		if err != nil {
			e.log.Debug("injection language unavailable", "language", lang, "err", err)
			continue
		}
		for _, site := range byLang[lang] {
			caps := e.highlightSite(rp, site, source)
			if caps == nil {
				continue
			}
			out = append(out, caps...)
			ranges[lang] = append(ranges[lang], byteRange{start: site.start, end: site.end})
		}
	}
	if len(ranges) == 0 {
		return out, nil
	}
	return out, ranges
}

// highlightSite parses one injection site and returns its captures remapped
// into host coordinates. Sub-trees are closed before returning; captures
// are already materialized so nothing dangles.
func (e *Engine) highlightSite(rp *reusableParser, site injectionSite, source []byte) []capture {
	sub := source[site.start:site.end]

	start := time.Now()
	tree := rp.parser.Parse(sub, nil)
	e.perf.recordParse(time.Since(start))
	if tree == nil {
		e.log.Debug("injection parse failed", "language", rp.loaded.filetype)
		return nil
	}
	defer tree.Close()

	caps := e.timedQuery(rp.loaded.highlights, tree.RootNode(), sub, nil)
	for i := range caps {
		remapCapture(&caps[i], site)
	}
	if caps == nil {
		// A parsed site with no captures still counts as an injection range.
		caps = []capture{}
	}
	return caps
}

// remapCapture translates a sub-parse capture into host coordinates. Bytes
// shift by the site's start offset. Rows always shift by the site's start
// row; columns shift by the site's start column only for captures on the
// sub-parse's first row, since later rows already use host columns.
func remapCapture(c *capture, site injectionSite) {
	c.startByte += site.start
	c.endByte += site.start
	if c.startPoint.Row == 0 {
		c.startPoint.Column += site.startPoint.Column
	}
	if c.endPoint.Row == 0 {
		c.endPoint.Column += site.startPoint.Column
	}
	c.startPoint.Row += site.startPoint.Row
	c.endPoint.Row += site.startPoint.Row
	c.injected = true
	c.language = site.language

	// Sub-parse node ids are only unique within their own tree; mix in the
	// site offset so spans from different sites cannot collide in the store.
	c.nodeID ^= uintptr(site.start)*2654435761 + 1
}
