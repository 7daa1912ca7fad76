// Package render turns markdown with embedded TeX into display output.
//
// Renderers are stateless once constructed. One instance is built at
// startup and shared by every stream session.
package render

// Renderer converts a markdown source string into rendered output.
type Renderer interface {
	Render(src string) (string, error)
}

// DefaultMacros are the TeX macros available to authors when no others are configured.
var DefaultMacros = map[string]string{
	`\RR`: `\mathbb{R}`,
}

// Options configures the HTML renderer.
type Options struct {
	// CodeStyle is the chroma style used when writing the stylesheet.
	CodeStyle string
	// Macros are expanded inside math expressions before output.
	Macros map[string]string
	// Emoji enables :shortcode: replacement.
	Emoji bool
	// Sanitize runs the output through a UGC policy.
	Sanitize bool
}

func (o Options) withDefaults() Options {
	if o.CodeStyle == "" {
		o.CodeStyle = "github"
	}
	if o.Macros == nil {
		o.Macros = DefaultMacros
	}
	return o
}
