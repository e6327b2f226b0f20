package tui

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	markdown   = goldmark.New()
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// renderMarkdown flattens assistant markdown into terminal text: list
// markers become bullets or numbers, code blocks are indented, and link
// targets follow the link text.
func renderMarkdown(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	type listState struct {
		ordered bool
		next    int
	}
	var lists []listState

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				b.WriteString("\n")
			}
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.CodeSpan:
			b.WriteString("`")
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				b.WriteString("    ")
				b.Write(seg.Value(source))
			}
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.List:
			if entering {
				lists = append(lists, listState{ordered: n.IsOrdered(), next: n.Start})
			} else {
				lists = lists[:len(lists)-1]
				if len(lists) == 0 {
					b.WriteString("\n")
				}
			}
		case *ast.ListItem:
			if entering && len(lists) > 0 {
				l := &lists[len(lists)-1]
				b.WriteString(strings.Repeat("  ", len(lists)-1))
				if l.ordered {
					b.WriteString(strconv.Itoa(l.next) + ". ")
					l.next++
				} else {
					b.WriteString("• ")
				}
			}
		case *ast.ThematicBreak:
			if entering {
				b.WriteString("────────\n\n")
			}
		case *ast.AutoLink:
			if entering {
				b.Write(n.URL(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if !entering && len(n.Destination) > 0 {
				b.WriteString(" (" + string(n.Destination) + ")")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimRight(blankLines.ReplaceAllString(b.String(), "\n\n"), "\n")
}
