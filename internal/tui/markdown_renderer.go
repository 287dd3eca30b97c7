package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders widget bodies and recreates the renderer when wrap width changes.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

// render converts markdown input into ANSI-styled terminal text with the requested wrap width.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, 24)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
		r.cache = map[string]string{}
	}
	if out, ok := r.cache[markdown]; ok {
		return out
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	out := strings.Trim(rendered, "\n")
	r.cache[markdown] = out
	return out
}
