package slack

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ToMrkdwn converts standard markdown, which is what the assistant
// produces, into Slack's mrkdwn dialect: *bold* instead of **bold**,
// _italic_ instead of *italic*, <url|label> links, and bullet lists.
// Headings have no mrkdwn equivalent and render as bold lines.
func ToMrkdwn(md string) string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	renderBlocks(&sb, doc, src, "")
	return strings.TrimRight(sb.String(), "\n")
}

func renderBlocks(sb *strings.Builder, parent ast.Node, src []byte, indent string) {
	first := true
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if !first {
			sb.WriteByte('\n')
		}
		first = false
		renderBlock(sb, n, src, indent)
	}
}

func renderBlock(sb *strings.Builder, node ast.Node, src []byte, indent string) {
	switch n := node.(type) {
	case *ast.Heading:
		sb.WriteString(indent)
		sb.WriteByte('*')
		renderInlines(sb, n, src)
		sb.WriteString("*\n")

	case *ast.Paragraph, *ast.TextBlock:
		sb.WriteString(indent)
		renderInlines(sb, node, src)
		sb.WriteByte('\n')

	case *ast.FencedCodeBlock:
		renderCodeBlock(sb, n, src)

	case *ast.CodeBlock:
		renderCodeBlock(sb, n, src)

	case *ast.List:
		renderList(sb, n, src, indent)

	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			sb.WriteString(indent)
			sb.WriteString("> ")
			renderInlines(sb, c, src)
			sb.WriteByte('\n')
		}

	case *ast.ThematicBreak:
		// No mrkdwn equivalent; the surrounding blank line is enough.

	default:
		renderInlines(sb, node, src)
		sb.WriteByte('\n')
	}
}

func renderCodeBlock(sb *strings.Builder, node ast.Node, src []byte) {
	sb.WriteString("```\n")
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	sb.WriteString("```\n")
}

func renderList(sb *strings.Builder, list *ast.List, src []byte, indent string) {
	i := list.Start
	if i == 0 {
		i = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", i)
			i++
		}

		firstLine := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				renderList(sb, nested, src, indent+"    ")
				continue
			}
			sb.WriteString(indent)
			if firstLine {
				sb.WriteString(marker)
				firstLine = false
			} else {
				sb.WriteString(strings.Repeat(" ", len(marker)))
			}
			renderInlines(sb, c, src)
			sb.WriteByte('\n')
		}
	}
}

func renderInlines(sb *strings.Builder, parent ast.Node, src []byte) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		renderInline(sb, n, src)
	}
}

func renderInline(sb *strings.Builder, node ast.Node, src []byte) {
	switch n := node.(type) {
	case *ast.Text:
		sb.Write(n.Segment.Value(src))
		if n.SoftLineBreak() || n.HardLineBreak() {
			sb.WriteByte('\n')
		}

	case *ast.String:
		sb.Write(n.Value)

	case *ast.CodeSpan:
		sb.WriteByte('`')
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
			}
		}
		sb.WriteByte('`')

	case *ast.Emphasis:
		marker := "_"
		if n.Level == 2 {
			marker = "*"
		}
		sb.WriteString(marker)
		renderInlines(sb, n, src)
		sb.WriteString(marker)

	case *ast.Link:
		sb.WriteByte('<')
		sb.Write(n.Destination)
		sb.WriteByte('|')
		renderInlines(sb, n, src)
		sb.WriteByte('>')

	case *ast.AutoLink:
		sb.WriteByte('<')
		sb.Write(n.URL(src))
		sb.WriteByte('>')

	case *ast.Image:
		sb.WriteByte('<')
		sb.Write(n.Destination)
		sb.WriteByte('|')
		renderInlines(sb, n, src)
		sb.WriteByte('>')

	default:
		renderInlines(sb, node, src)
	}
}
