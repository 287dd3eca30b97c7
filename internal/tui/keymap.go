package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"charm.land/bubbles/v2/key"
)

// KeyConfig overrides the configurable bindings. Empty values keep defaults.
type KeyConfig struct {
	Grab   string
	Swap   string
	Reset  string
	Detail string
	Copy   string
}

// keyMap holds every binding the dashboard reacts to.
type keyMap struct {
	quit       key.Binding
	reload     key.Binding
	toggleHelp key.Binding
	left       key.Binding
	right      key.Binding
	up         key.Binding
	down       key.Binding
	grab       key.Binding
	swap       key.Binding
	cancel     key.Binding
	reset      key.Binding
	resize     key.Binding
	detail     key.Binding
	copyLayout key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		left:       key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "left")),
		right:      key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "right")),
		up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		down:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		grab:       key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "grab/drop")),
		swap:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "mark/swap")),
		cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		reset:      key.NewBinding(key.WithKeys("R", "shift+r"), key.WithHelp("R", "reset layout")),
		resize:     key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "cycle size")),
		detail:     key.NewBinding(key.WithKeys("enter", "i"), key.WithHelp("enter", "details")),
		copyLayout: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy layout")),
	}
}

// withOverrides applies configured bindings on top of the defaults.
func (k keyMap) withOverrides(cfg KeyConfig) keyMap {
	apply := func(b *key.Binding, raw, desc string) {
		keys, help := parseBindingKeys(raw, b.Help().Key)
		if len(keys) == 0 {
			return
		}
		*b = key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
	}
	apply(&k.grab, cfg.Grab, "grab/drop")
	apply(&k.swap, cfg.Swap, "mark/swap")
	apply(&k.reset, cfg.Reset, "reset layout")
	apply(&k.detail, cfg.Detail, "details")
	apply(&k.copyLayout, cfg.Copy, "copy layout")
	return k
}

// parseBindingKeys turns one configured key into matcher keys plus help text.
func parseBindingKeys(raw, fallbackHelp string) ([]string, string) {
	if raw == "" {
		return nil, fallbackHelp
	}
	if raw == " " || strings.EqualFold(strings.TrimSpace(raw), "space") {
		return []string{" ", "space"}, "space"
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fallbackHelp
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if unicode.IsUpper(r) {
			return []string{raw, "shift+" + string(unicode.ToLower(r))}, raw
		}
		return []string{raw}, raw
	}
	return []string{strings.ToLower(raw)}, raw
}

// ShortHelp returns the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.grab, k.swap, k.detail, k.resize, k.reset, k.toggleHelp, k.quit}
}

// FullHelp returns every binding grouped by purpose.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.left, k.right, k.up, k.down},
		{k.grab, k.swap, k.cancel, k.resize, k.reset},
		{k.detail, k.copyLayout, k.reload, k.toggleHelp, k.quit},
	}
}
