package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// theme maps highlight group names (and prefixes, matched on the segment
// before the first dot) to terminal styles.
var theme = map[string]lipgloss.Style{
	"keyword":     lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	"string":      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	"number":      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"comment":     lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
	"function":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	"type":        lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	"constant":    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"variable":    lipgloss.NewStyle(),
	"property":    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	"operator":    lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	"punctuation": lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	"tag":         lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	"attribute":   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"heading":     lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	"conceal":     lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
}

func styleFor(group string) (lipgloss.Style, bool) {
	if s, ok := theme[group]; ok {
		return s, true
	}
	if dot := strings.IndexByte(group, '.'); dot > 0 {
		if s, ok := theme[group[:dot]]; ok {
			return s, true
		}
	}
	return lipgloss.Style{}, false
}

// render paints the flat highlight tuples over content. Overlapping tuples
// are resolved by byte order: once a tuple is painted, later tuples starting
// inside it are skipped.
func render(content string, caps []syntax.FlatCapture) string {
	var sb strings.Builder
	sb.Grow(len(content))

	cursor := uint(0)
	for _, c := range caps {
		if c.StartByte < cursor || c.EndByte > uint(len(content)) || c.EndByte <= c.StartByte {
			continue
		}
		style, ok := styleFor(c.Group)
		if !ok {
			continue
		}
		sb.WriteString(content[cursor:c.StartByte])
		sb.WriteString(style.Render(content[c.StartByte:c.EndByte]))
		cursor = c.EndByte
	}
	sb.WriteString(content[cursor:])
	return sb.String()
}
