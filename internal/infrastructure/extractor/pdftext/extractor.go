// Package pdftext extracts page-scoped text from stored source documents.
// PDFs are read from the embedded text layer; anything else is treated as
// UTF-8 text with optional page markers.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/tndao/prospectus-rag/internal/core/domain"
	"github.com/tndao/prospectus-rag/internal/core/ports"
	"github.com/tndao/prospectus-rag/internal/infrastructure/normalize"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if isPDF(doc.MimeType, raw) {
		return extractPDFPages(raw)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"extract",
			fmt.Errorf("unsupported binary format: %s", doc.Filename),
		)
	}
	return normalize.ParsePages(string(raw)), nil
}

func isPDF(mimeType string, raw []byte) bool {
	if mimeType == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func extractPDFPages(raw []byte) ([]domain.PageText, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	var pages []domain.PageText
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		// Pages with no text layer (scans) are skipped, not failed.
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.PageText{PageNumber: i, Text: text})
	}
	return pages, nil
}
