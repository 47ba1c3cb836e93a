package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"quickestimate/internal"
)

// PDFExtractor pulls the text layer out of a PDF and reads it with the
// same line rules as TextExtractor. Scanned PDFs without text fail with a
// schema error; send those through the photo extractor instead.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, data []byte) ([]internal.ExtractedPatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("pdf", err)
	}
	text, err := pdfText(data)
	if err != nil {
		return nil, newError(KindDecode, "pdf", err)
	}
	patches, err := parseTextRows(text, internal.SourcePDF)
	if err != nil {
		return nil, newError(KindSchema, "pdf", err)
	}
	return patches, nil
}

func pdfText(content []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}
