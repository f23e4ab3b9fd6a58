package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/papyrus-systems/papyrus/parser"
)

// Parser extracts plain text from PDF files. PDFs carry no reliable
// title metadata, so the title falls back to the filename.
type Parser struct{}

var _ parser.Parser = (*Parser)(nil)

// NewParser creates a PDF parser.
func NewParser() *Parser {
	return &Parser{}
}

// Extensions returns the file extensions this parser handles.
func (p *Parser) Extensions() []string {
	return []string{".pdf"}
}

// Parse reads the file and extracts its text.
func (p *Parser) Parse(ctx context.Context, path string) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return nil, parser.ErrEmptyDocument
	}

	return &parser.Result{
		Text:  text,
		Title: parser.TitleFromPath(path),
	}, nil
}
