// Copyright 2025 Papyrus Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parser turns source files into plain text ready for chunking.
// Each format gets its own subpackage; the Registry routes a path to the
// right implementation by file extension.
package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Result is the outcome of parsing one source file.
type Result struct {
	// Text is the extracted plain text content.
	Text string

	// Title is the document title derived during parsing. Empty when the
	// format carries no usable title; callers fall back to the filename.
	Title string
}

// Parser extracts text from one document format.
type Parser interface {
	// Parse reads the file at path and extracts its text content.
	Parse(ctx context.Context, path string) (*Result, error)

	// Extensions lists the lowercase file extensions this parser handles,
	// including the leading dot.
	Extensions() []string
}

// Registry routes file paths to parsers by extension.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser for all of its extensions. Later registrations
// win on conflict.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// ParserFor returns the parser handling the path's extension.
func (r *Registry) ParserFor(path string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.parsers[ext]
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	return p, nil
}

// Eligible reports whether some registered parser handles the path.
func (r *Registry) Eligible(path string) bool {
	_, ok := r.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse routes the path to the right parser and parses it.
func (r *Registry) Parse(ctx context.Context, path string) (*Result, error) {
	p, err := r.ParserFor(path)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path)
}

// TitleFromPath derives a fallback title from a file path: the base name
// without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
