package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"quickestimate/internal"
)

// headerScanRows is how far down a sheet the header row may sit, leaving
// room for a title or customer line above it.
const headerScanRows = 5

// XLSXExtractor reads every sheet that carries a size/PCS/rate header.
type XLSXExtractor struct{}

func (XLSXExtractor) Extract(ctx context.Context, data []byte) ([]internal.ExtractedPatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("xlsx", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindDecode, "xlsx", err)
	}
	defer f.Close()

	out := []internal.ExtractedPatch{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, newError(KindDecode, "xlsx", fmt.Errorf("sheet %q: %w", sheet, err))
		}

		header := -1
		var cols sheetColumns
		for i := 0; i < len(rows) && i < headerScanRows; i++ {
			cols = inferColumns(normalizeCells(rows[i]))
			if cols.complete() {
				header = i
				break
			}
		}
		if header < 0 {
			continue
		}

		for i := header + 1; i < len(rows); i++ {
			patch, ok, err := rowFromCells(normalizeCells(rows[i]), cols, internal.SourceXLSX)
			if err != nil {
				return nil, newError(KindSchema, "xlsx", fmt.Errorf("sheet %q row %d: %w", sheet, i+1, err))
			}
			if ok {
				out = append(out, patch)
			}
		}
	}
	if len(out) == 0 {
		return nil, newError(KindSchema, "xlsx", errors.New("no sheet with size, pcs and rate columns"))
	}
	return out, nil
}
