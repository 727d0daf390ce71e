package document

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

const pdfMagic = "%PDF-"

// PDFExtractor extracts the plain text of every PDF page. Pages without a
// content dictionary yield an empty string so page indices stay aligned with
// the PDF's own numbering.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

func (e *PDFExtractor) Name() string { return "pdf" }

func (e *PDFExtractor) Extract(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, ErrNoPages
	}

	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, ErrNoPages
	}

	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	return pages, nil
}
