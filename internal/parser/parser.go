// Package parser implements the Document Parser (C1): format dispatch plus
// PDF complexity scoring, emitting unified markdown text.
//
// Dispatch and fallback shape is grounded on the teacher's
// internal/service/parser.go; the PDF complexity scorer is grounded on
// original_source/core/document_processor.py's pdf_complexity_score, whose
// weights match spec.md §4.1 exactly. The teacher operated on GCS URIs via
// Document AI — Sentinel ingests uploaded bytes directly (spec §4.5/§6), so
// Extract takes a filename and byte slice rather than a storage reference.
package parser

import (
	"log/slog"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/sentinelrag/sentinel/internal/apperr"
)

// Result is the unified output of Extract: markdown text and a rough page
// count where the format has one.
type Result struct {
	Markdown string
	Pages    int
}

// Parser extracts unified markdown text from uploaded file bytes.
type Parser struct {
	complexitySamplePages int
	complexityThreshold   float64
}

// New builds a Parser. samplePages and threshold default to the values
// spec.md §4.1 specifies (5 pages, score >= 7 routes to the layout-preserving
// converter) when zero values are passed.
func New(samplePages int, threshold float64) *Parser {
	if samplePages <= 0 {
		samplePages = 5
	}
	if threshold <= 0 {
		threshold = moderateThreshold
	}
	return &Parser{complexitySamplePages: samplePages, complexityThreshold: threshold}
}

// Extract dispatches on filename extension (case-insensitive) and returns
// markdown text, or an apperr of KindValidation (UnsupportedFormat) /
// KindDependencyFailure (ParseFailure).
func (p *Parser) Extract(filename string, data []byte) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		return p.extractPDF(data)
	case ".docx":
		text, err := extractDocxText(data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyFailure, "parse docx", err)
		}
		return &Result{Markdown: text, Pages: 1}, nil
	case ".pptx", ".xls", ".xlsx":
		return p.extractOffice(ext, data)
	case ".md", ".markdown", ".txt":
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil, apperr.New(apperr.KindValidation, "file is empty")
		}
		return &Result{Markdown: text, Pages: 1}, nil
	default:
		return nil, apperr.New(apperr.KindValidation, "unsupported file format: "+ext)
	}
}

// extractOffice converts office documents to markdown via an HTML
// intermediate representation, matching manifold's ingestion approach for
// this format family (DOMAIN STACK wiring, see SPEC_FULL.md).
func (p *Parser) extractOffice(ext string, data []byte) (*Result, error) {
	html, err := officeToHTML(ext, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "convert office document", err)
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "convert html to markdown", err)
	}
	if strings.TrimSpace(md) == "" {
		return nil, apperr.New(apperr.KindDependencyFailure, "office document produced no text")
	}
	return &Result{Markdown: md, Pages: 1}, nil
}

// extractPDF scores the document's layout complexity and routes to the
// cheaper or the layout-preserving extraction path accordingly.
func (p *Parser) extractPDF(data []byte) (*Result, error) {
	doc, err := parsePDFStructure(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFailure, "open pdf", err)
	}

	score := p.complexityScore(doc)
	slog.Info("pdf complexity scored", "score", score, "pages_sampled", min(len(doc.pages), p.complexitySamplePages))

	var md string
	if score < p.complexityThreshold {
		md = fastMarkdownExtract(doc)
	} else {
		md = layoutPreservingExtract(doc)
	}

	if strings.TrimSpace(md) == "" {
		return nil, apperr.New(apperr.KindDependencyFailure, "pdf produced no extractable text")
	}
	return &Result{Markdown: md, Pages: len(doc.pages)}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
