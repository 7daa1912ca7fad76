package render

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var dollars = []byte("$$")

// KindMathInline is the node kind of a $...$ or single-line $$...$$ expression.
var KindMathInline = ast.NewNodeKind("MathInline")

// MathInline is a math expression inside a paragraph.
type MathInline struct {
	ast.BaseInline
	Display bool
}

func (n *MathInline) Kind() ast.NodeKind { return KindMathInline }

func (n *MathInline) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Display": boolString(n.Display),
	}, nil)
}

// KindMathBlock is the node kind of a $$ block spanning lines.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// MathBlock is display math opened by a line starting with $$.
type MathBlock struct {
	ast.BaseBlock
	// Closed is false when the input ended before the closing $$.
	Closed bool
}

func (n *MathBlock) Kind() ast.NodeKind { return KindMathBlock }

func (n *MathBlock) IsRaw() bool { return true }

func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Closed": boolString(n.Closed),
	}, nil)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type mathInlineParser struct{}

func (p *mathInlineParser) Trigger() []byte {
	return []byte{'$'}
}

func (p *mathInlineParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, segment := block.PeekLine()

	if bytes.HasPrefix(line, dollars) {
		end := bytes.Index(line[2:], dollars)
		if end < 1 {
			return nil
		}
		node := &MathInline{Display: true}
		node.AppendChild(node, ast.NewTextSegment(text.NewSegment(segment.Start+2, segment.Start+2+end)))
		block.Advance(end + 4)
		return node
	}

	if len(line) < 3 || isSpace(line[1]) {
		return nil
	}
	end := -1
	for i := 2; i < len(line); i++ {
		if line[i] != '$' || line[i-1] == '\\' {
			continue
		}
		if isSpace(line[i-1]) {
			continue
		}
		if i+1 < len(line) && line[i+1] >= '0' && line[i+1] <= '9' {
			continue
		}
		end = i
		break
	}
	if end < 0 {
		return nil
	}
	node := &MathInline{}
	node.AppendChild(node, ast.NewTextSegment(text.NewSegment(segment.Start+1, segment.Start+end)))
	block.Advance(end + 1)
	return node
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type mathBlockParser struct{}

func (b *mathBlockParser) Trigger() []byte {
	return []byte{'$'}
}

func (b *mathBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || !bytes.HasPrefix(line[pos:], dollars) {
		return nil, parser.NoChildren
	}
	rest := line[pos+2:]
	// $$x$$ on one line stays inline.
	if bytes.Contains(rest, dollars) {
		return nil, parser.NoChildren
	}
	node := &MathBlock{}
	if !util.IsBlank(rest) {
		node.Lines().Append(text.NewSegment(segment.Start+pos+2, segment.Stop))
	}
	return node, parser.NoChildren
}

func (b *mathBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	// Only a line ending in $$ closes the block; text after a $$ stays math.
	trimmed := util.TrimRightSpace(line)
	if bytes.HasSuffix(trimmed, dollars) {
		i := len(trimmed) - len(dollars)
		if i > 0 && !util.IsBlank(line[:i]) {
			node.Lines().Append(text.NewSegment(segment.Start, segment.Start+i))
		}
		newline := 1
		if line[len(line)-1] != '\n' {
			newline = 0
		}
		reader.Advance(segment.Stop - segment.Start - newline + segment.Padding)
		node.(*MathBlock).Closed = true
		return parser.Close
	}
	node.Lines().Append(segment)
	reader.Advance(segment.Len() - 1)
	return parser.Continue | parser.NoChildren
}

func (b *mathBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (b *mathBlockParser) CanInterruptParagraph() bool {
	return true
}

func (b *mathBlockParser) CanAcceptIndentedLine() bool {
	return false
}

// mathRenderer compiles math nodes to MathML. An expression the compiler
// rejects is written as delimited TeX so a client-side typesetter can still
// pick it up.
type mathRenderer struct {
	macros *macroExpander
}

func (r *mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathInline, r.renderMathInline)
	reg.Register(KindMathBlock, r.renderMathBlock)
}

func (r *mathRenderer) renderMathInline(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*MathInline)
	var tex bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			tex.Write(t.Segment.Value(source))
		}
	}
	if n.Display {
		r.writeMath(w, "span", "math display", tex.String(), true)
	} else {
		r.writeMath(w, "span", "math inline", tex.String(), false)
	}
	return ast.WalkSkipChildren, nil
}

func (r *mathRenderer) renderMathBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	var src bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		src.Write(seg.Value(source))
	}
	tex := strings.TrimSpace(src.String())
	if node.(*MathBlock).Closed {
		r.writeMath(w, "div", "math display", tex, true)
	} else {
		// Still streaming in; compile once the closing $$ arrives.
		r.writeTeX(w, "div", "math display", r.macros.expand(tex), true)
	}
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

func (r *mathRenderer) writeMath(w util.BufWriter, tag, class, tex string, display bool) {
	tex = r.macros.expand(tex)
	mml, err := texToMathML(tex, display)
	if err != nil {
		r.writeTeX(w, tag, class, tex, display)
		return
	}
	_, _ = w.WriteString("<" + tag + ` class="` + class + `">`)
	_, _ = w.WriteString(mml)
	_, _ = w.WriteString("</" + tag + ">")
}

func (r *mathRenderer) writeTeX(w util.BufWriter, tag, class, tex string, display bool) {
	open, closing := `\(`, `\)`
	if display {
		open, closing = `\[`, `\]`
	}
	_, _ = w.WriteString("<" + tag + ` class="` + class + `">` + open)
	_, _ = w.Write(util.EscapeHTML([]byte(tex)))
	_, _ = w.WriteString(closing + "</" + tag + ">")
}

// macroExpander substitutes user macros in TeX source. A macro only matches
// when the following byte is not an ASCII letter, so \RR does not match \RRx.
type macroExpander struct {
	names  []string
	values map[string]string
}

func newMacroExpander(macros map[string]string) *macroExpander {
	names := make([]string, 0, len(macros))
	for name := range macros {
		names = append(names, name)
	}
	// Longest first so \RRR wins over \RR.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return &macroExpander{names: names, values: macros}
}

func (m *macroExpander) expand(tex string) string {
	if len(m.names) == 0 || !strings.Contains(tex, `\`) {
		return tex
	}
	var sb strings.Builder
	for i := 0; i < len(tex); {
		matched := false
		if tex[i] == '\\' {
			for _, name := range m.names {
				if !strings.HasPrefix(tex[i:], name) {
					continue
				}
				next := i + len(name)
				if next < len(tex) && isLetter(tex[next]) {
					continue
				}
				sb.WriteString(m.values[name])
				i = next
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(tex[i])
			i++
		}
	}
	return sb.String()
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

type mathExtension struct {
	macros *macroExpander
}

// Math returns a goldmark extension for dollar-delimited TeX with the given macros.
func Math(macros map[string]string) goldmark.Extender {
	return &mathExtension{macros: newMacroExpander(macros)}
}

func (e *mathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(&mathBlockParser{}, 701)),
		parser.WithInlineParsers(util.Prioritized(&mathInlineParser{}, 501)),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(&mathRenderer{macros: e.macros}, 500)),
	)
}
