package markdown

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/papyrus-systems/papyrus/parser"
)

// Parser handles markdown and plain-text files. Markdown is stored as-is;
// the goldmark AST is only consulted to pull the first heading out as the
// document title.
type Parser struct {
	md goldmark.Markdown
}

var _ parser.Parser = (*Parser)(nil)

// NewParser creates a markdown parser.
func NewParser() *Parser {
	return &Parser{md: goldmark.New()}
}

// Extensions returns the file extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".md", ".markdown", ".txt"}
}

// Parse reads the file and extracts its text and title.
func (p *Parser) Parse(ctx context.Context, path string) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(src)
	if strings.TrimSpace(text) == "" {
		return nil, parser.ErrEmptyDocument
	}

	title := p.extractTitle(src)
	if title == "" {
		title = parser.TitleFromPath(path)
	}

	return &parser.Result{Text: text, Title: title}, nil
}

// extractTitle returns the text of the first heading in the document.
func (p *Parser) extractTitle(src []byte) string {
	doc := p.md.Parser().Parse(gmtext.NewReader(src))

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		for c := heading.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(src))
			}
		}
		title = strings.TrimSpace(buf.String())
		return ast.WalkStop, nil
	})

	return title
}
