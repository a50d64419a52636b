// Package pdftext turns PDF bytes into flattened text plus a reported page count.
package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageBreak separates the text of consecutive parser pages in Parsed.Text.
const PageBreak = "\f"

type Parsed struct {
	Text      string
	PageCount int
}

// Parser is the default PDF parser. It satisfies services.PDFParser.
type Parser struct{}

func (Parser) Parse(data []byte) (*Parsed, error) { return Parse(data) }
func (Parser) PageCount(data []byte) (int, error) { return PageCount(data) }

// PageCount validates the document in relaxed mode and returns its page count.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF page count: %w", err)
	}
	return n, nil
}

// Parse extracts the plain text of every page. Pages are joined with
// PageBreak, so a page with no text layer still occupies a slot.
func Parse(data []byte) (parsed *Parsed, err error) {
	count, err := PageCount(data)
	if err != nil {
		return nil, err
	}

	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			parsed, err = nil, fmt.Errorf("PDF text extraction panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	n := reader.NumPage()
	texts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, strings.ReplaceAll(text, PageBreak, "\n"))
	}

	if count == 0 {
		count = n
	}
	return &Parsed{Text: strings.Join(texts, PageBreak), PageCount: count}, nil
}
