package extract

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"quickestimate/internal"
	"quickestimate/internal/util"
)

// Extractor turns one document or photo into size row patches. A non-nil
// error is always an *ExtractionError and comes with no patches.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]internal.ExtractedPatch, error)
}

// ForContentType picks a document extractor by MIME type, falling back to
// the file extension. Images are not handled here; see IsImage.
func ForContentType(contentType, filename string) (Extractor, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return XLSXExtractor{}, true
	case "application/pdf":
		return PDFExtractor{}, true
	case "text/html":
		return HTMLTableExtractor{}, true
	case "text/plain", "text/csv":
		return TextExtractor{}, true
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return XLSXExtractor{}, true
	case ".pdf":
		return PDFExtractor{}, true
	case ".html", ".htm":
		return HTMLTableExtractor{}, true
	case ".txt", ".csv":
		return TextExtractor{}, true
	}
	return nil, false
}

// IsImage reports whether a part should go to the photo extractor.
func IsImage(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic":
		return true
	}
	return false
}

// sheetColumns holds the column positions of a size table. meters is
// optional and only used to keep it from being mistaken for the size.
type sheetColumns struct {
	size, meters, pcs, rate int
}

func (c sheetColumns) complete() bool {
	return c.size >= 0 && c.pcs >= 0 && c.rate >= 0
}

// inferColumns maps header captions like "Size (ft)", "Size (m)", "PCS"
// and "Rate" to column positions.
func inferColumns(headers []string) sheetColumns {
	cols := sheetColumns{size: -1, meters: -1, pcs: -1, rate: -1}
	looseSize := -1
	for i, h := range headers {
		tokens := util.Tokenize(h)
		switch {
		case hasToken(tokens, "pcs", "pc", "pieces", "piece", "qty", "nos"):
			setOnce(&cols.pcs, i)
		case hasToken(tokens, "rate", "price"):
			setOnce(&cols.rate, i)
		case hasToken(tokens, "ft", "feet", "foot"):
			setOnce(&cols.size, i)
		case hasToken(tokens, "m", "mtr", "mtrs", "meter", "meters", "metre", "metres"):
			setOnce(&cols.meters, i)
		case hasToken(tokens, "size"):
			if looseSize < 0 {
				looseSize = i
			}
		}
	}
	if cols.size < 0 {
		cols.size = looseSize
	}
	return cols
}

// rowFromCells reads one table row. ok is false for rows that are not
// size rows at all (totals, notes, blank lines); err is set for size rows
// whose PCS or rate cell holds something other than a number.
func rowFromCells(cells []string, cols sheetColumns, source internal.PatchSource) (patch internal.ExtractedPatch, ok bool, err error) {
	sizeCell := cellAt(cells, cols.size)
	size, found := util.ParseNumber(sizeCell)
	if !found {
		return patch, false, nil
	}
	pcs, err := optionalNumber(cellAt(cells, cols.pcs), "pcs")
	if err != nil {
		return patch, false, err
	}
	if err := checkPieces(pcs); err != nil {
		return patch, false, err
	}
	rate, err := optionalNumber(cellAt(cells, cols.rate), "rate")
	if err != nil {
		return patch, false, err
	}
	return internal.ExtractedPatch{SizeFeet: size, Pieces: pcs, Rate: rate, Source: source}, true, nil
}

// optionalNumber treats a blank cell as 0, the same way a blank
// handwritten field reads on a photographed sheet.
func optionalNumber(cell, field string) (decimal.Decimal, error) {
	if strings.TrimSpace(cell) == "" {
		return decimal.Zero, nil
	}
	d, ok := util.ParseNumber(cell)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s cell %q is not a number", field, cell)
	}
	return d, nil
}

func cellAt(cells []string, idx int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}

func hasToken(tokens []string, probes ...string) bool {
	for _, t := range tokens {
		for _, p := range probes {
			if t == p {
				return true
			}
		}
	}
	return false
}

func setOnce(dst *int, i int) {
	if *dst < 0 {
		*dst = i
	}
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}
