package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"quickestimate/internal"
	"quickestimate/internal/util"
)

// HTMLTableExtractor reads <table> elements whose first row names the
// size, PCS and rate columns. Tables without those headers are skipped.
type HTMLTableExtractor struct{}

func (HTMLTableExtractor) Extract(ctx context.Context, data []byte) ([]internal.ExtractedPatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("html", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindDecode, "html", err)
	}

	out := []internal.ExtractedPatch{}
	var rowErr error
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, cell.Text())
		})
		cols := inferColumns(headers)
		if !cols.complete() {
			return true
		}

		rows.Slice(1, rows.Length()).EachWithBreak(func(i int, row *goquery.Selection) bool {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			patch, ok, err := rowFromCells(cells, cols, internal.SourceHTMLTable)
			if err != nil {
				rowErr = fmt.Errorf("table row %d: %w", i+2, err)
				return false
			}
			if ok {
				out = append(out, patch)
			}
			return true
		})
		return rowErr == nil
	})
	if rowErr != nil {
		return nil, newError(KindSchema, "html", rowErr)
	}
	if len(out) == 0 {
		return nil, newError(KindSchema, "html", errors.New("no table with size, pcs and rate columns"))
	}
	return out, nil
}
