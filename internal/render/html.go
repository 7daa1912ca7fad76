package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

var mathMLElements = []string{
	"math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "ms", "mtext",
	"mspace", "msup", "msub", "msubsup", "mfrac", "msqrt", "mroot", "mover",
	"munder", "munderover", "mmultiscripts", "mprescripts", "none", "mtable",
	"mtr", "mtd", "mlabeledtr", "mstyle", "mpadded", "mphantom", "menclose", "merror",
}

var mathMLAttrs = []string{
	"display", "displaystyle", "xmlns", "encoding", "mathvariant", "mathsize",
	"mathcolor", "scriptlevel", "stretchy", "fence", "symmetric", "largeop",
	"movablelimits", "accent", "accentunder", "form", "lspace", "rspace",
	"linethickness", "notation", "rowspacing", "columnspacing", "columnalign",
	"width", "height", "depth", "voffset", "intent", "linebreak", "title",
}

// HTMLRenderer renders markdown and TeX to an HTML fragment.
type HTMLRenderer struct {
	md        goldmark.Markdown
	highlight *highlighter
	policy    *bluemonday.Policy
}

// NewHTML builds an HTMLRenderer. Line breaks inside paragraphs are kept and
// raw HTML in the source is passed through unless Sanitize is set.
func NewHTML(opts Options) *HTMLRenderer {
	opts = opts.withDefaults()
	h := newHighlighter(opts.CodeStyle)

	extensions := []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		Math(opts.Macros),
	}
	if opts.Emoji {
		extensions = append(extensions, emoji.Emoji)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extensions...),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{h: h}, 200)),
		),
	)

	r := &HTMLRenderer{md: md, highlight: h}
	if opts.Sanitize {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Globally()
		p.AllowElements(mathMLElements...)
		p.AllowAttrs(mathMLAttrs...).OnElements(mathMLElements...)
		r.policy = p
	}
	return r
}

// Render converts src to HTML. An empty source renders to an empty string.
func (r *HTMLRenderer) Render(src string) (string, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	if r.policy != nil {
		return r.policy.Sanitize(buf.String()), nil
	}
	return buf.String(), nil
}

// CSS writes the stylesheet for highlighted code blocks.
func (r *HTMLRenderer) CSS(w io.Writer) error {
	return r.highlight.writeCSS(w)
}
