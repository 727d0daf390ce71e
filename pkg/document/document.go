// Package document turns uploaded files into the ordered page texts whose
// digests become merkle leaves.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
)

// PageBreak separates pages in plain-text documents.
const PageBreak = "\f"

var (
	// ErrNoPages is returned when a document yields no pages.
	ErrNoPages = errors.New("no pages extracted from document")
	// ErrInvalidText is returned for text documents that are not valid UTF-8.
	ErrInvalidText = errors.New("text document is not valid UTF-8")
)

// Extractor splits a document into ordered page texts.
type Extractor interface {
	Extract(data []byte) ([]string, error)
	Name() string
}

// Detect picks the extractor for a file by its content, falling back to its
// extension.
func Detect(filename string, data []byte) Extractor {
	if bytes.HasPrefix(data, []byte(pdfMagic)) || strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return &PDFExtractor{}
	}
	return &TextExtractor{}
}

// TextExtractor treats the document as UTF-8 text with form feeds between pages.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

func (e *TextExtractor) Name() string { return "text" }

func (e *TextExtractor) Extract(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, ErrNoPages
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidText
	}

	pages := strings.Split(string(data), PageBreak)
	// A terminating form feed does not start a new page.
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

// HashPages returns the leaf digest of every page, in page order.
func HashPages(h merkle.Hasher, pages []string) []merkle.Digest {
	leaves := make([]merkle.Digest, len(pages))
	for i, page := range pages {
		leaves[i] = h.DigestLeaf([]byte(page))
	}
	return leaves
}

// ExtractPages runs the detected extractor and rejects empty results.
func ExtractPages(filename string, data []byte) ([]string, error) {
	extractor := Detect(filename, data)
	pages, err := extractor.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("%s extraction failed: %w", extractor.Name(), err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}
