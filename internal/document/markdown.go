package document

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownLoader handles Markdown files using goldmark. Headings, list
// items, and pipe tables come back as typed blocks so the structured
// layout and table sources have something to work with.
type MarkdownLoader struct{}

func (p *MarkdownLoader) Load(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	var blocks []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if t := string(node.Text(src)); t != "" {
				blocks = append(blocks, Block{Kind: BlockHeading, Level: node.Level, Text: t})
			}
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				if t := mdText(item, src); t != "" {
					blocks = append(blocks, Block{Kind: BlockListItem, Text: t})
				}
			}
		case *east.Table:
			if cells := mdTableCells(node, src); len(cells) > 0 {
				blocks = append(blocks, Block{Kind: BlockTable, Cells: cells})
			}
		default:
			if t := mdText(n, src); t != "" {
				blocks = append(blocks, Block{Kind: BlockParagraph, Text: t})
			}
		}
	}

	return &Document{Pages: layoutBlocks(blocks)}, nil
}

func mdTableCells(table *east.Table, src []byte) [][]string {
	var cells [][]string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		switch row.(type) {
		case *east.TableHeader, *east.TableRow:
		default:
			continue
		}
		var cols []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cols = append(cols, strings.TrimSpace(string(cell.Text(src))))
		}
		if len(cols) > 0 {
			cells = append(cells, cols)
		}
	}
	return cells
}

// mdText gets the text content of a goldmark AST node.
func mdText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(mdText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
