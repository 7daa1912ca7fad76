package render

import (
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/wyatt915/treeblood"
	nethtml "golang.org/x/net/html"
)

// texToMathML compiles a TeX expression to a <math> element.
func texToMathML(tex string, display bool) (string, error) {
	doc := treeblood.NewPitziil()
	doc.PrintOneLine = true

	var (
		out string
		err error
	)
	if display {
		out, err = doc.DisplayStyle(tex)
	} else {
		out, err = doc.TextStyle(tex)
	}
	if err != nil {
		return "", err
	}
	return canonicalMarkup(strings.TrimSpace(out))
}

// canonicalMarkup re-serializes markup with attributes and inline style
// declarations in sorted order. The converter writes them in map order, and
// the same source must always render to the same bytes.
func canonicalMarkup(src string) (string, error) {
	z := nethtml.NewTokenizer(strings.NewReader(src))
	var sb strings.Builder
	for {
		if z.Next() == nethtml.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return sb.String(), nil
			}
			return "", z.Err()
		}
		tok := z.Token()
		if tok.Type == nethtml.StartTagToken || tok.Type == nethtml.SelfClosingTagToken {
			slices.SortStableFunc(tok.Attr, func(a, b nethtml.Attribute) int {
				return strings.Compare(a.Key, b.Key)
			})
			for i := range tok.Attr {
				if tok.Attr[i].Key == "style" {
					tok.Attr[i].Val = sortDeclarations(tok.Attr[i].Val)
				}
			}
		}
		sb.WriteString(tok.String())
	}
}

func sortDeclarations(style string) string {
	var decls []string
	for _, d := range strings.Split(style, ";") {
		if d = strings.TrimSpace(d); d != "" {
			decls = append(decls, d)
		}
	}
	slices.Sort(decls)
	return strings.Join(decls, ";") + ";"
}
