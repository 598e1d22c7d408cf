// Package pdftext turns PDF bytes into per-page text.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable is returned when a document cannot be opened or yields no
// usable text (encrypted, image-only, corrupted).
var ErrUnreadable = errors.New("unreadable document")

// MinTextChars is the amount of non-space text below which a document is
// treated as empty.
const MinTextChars = 100

// Extractor extracts page text from PDF documents.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages implements the text-extraction primitive used by the pipeline.
func (e *Extractor) ExtractPages(data []byte) ([]string, error) {
	return ExtractPages(data)
}

// ExtractPages reads a PDF from memory and returns the text of each page in
// order. Rows are reconstructed so that a statement line stays on one line.
func ExtractPages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnreadable)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: pdf reader crashed: %v", ErrUnreadable, r)
		}
	}()

	r, openErr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if openErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, openErr)
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnreadable)
	}

	pages = extractByRow(r, numPages)
	if Readable(pages) {
		return pages, nil
	}

	if plain := extractPlainText(r); Readable([]string{plain}) {
		return []string{plain}, nil
	}

	return nil, fmt.Errorf("%w: no readable text", ErrUnreadable)
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			pages = append(pages, "")
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Readable reports whether the pages together carry at least MinTextChars
// non-space characters and are mostly printable.
func Readable(pages []string) bool {
	total, printable := 0, 0
	for _, p := range pages {
		for _, r := range p {
			if unicode.IsSpace(r) {
				continue
			}
			total++
			if unicode.IsPrint(r) {
				printable++
			}
		}
	}
	if total < MinTextChars {
		return false
	}
	return float64(printable)/float64(total) > 0.6
}
