package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"
)

// TerminalOptions configures the terminal renderer.
type TerminalOptions struct {
	Theme string
	Wrap  int
}

// TerminalRenderer renders markdown as styled terminal text. TeX is left as
// written since terminals cannot typeset it.
type TerminalRenderer struct {
	markdown *glamour.TermRenderer
}

func NewTerminal(opts TerminalOptions) (*TerminalRenderer, error) {
	if opts.Theme == "" {
		opts.Theme = "dark"
	}
	if opts.Wrap <= 0 {
		opts.Wrap = 120
	}
	md, err := glamour.NewTermRenderer(
		markdown.WithTheme(opts.Theme),
		markdown.WithWrap(opts.Wrap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal renderer: %w", err)
	}
	return &TerminalRenderer{markdown: md}, nil
}

func (t *TerminalRenderer) Render(src string) (string, error) {
	content := strings.TrimSpace(src)
	if content == "" {
		return "", nil
	}

	out, err := t.markdown.Render(content)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	out = strings.TrimSpace(out) + "\n"
	if strings.HasPrefix(content, "#") {
		out = "\n" + out
	}
	return out, nil
}
