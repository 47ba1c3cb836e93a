package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"quickestimate/internal/estimate"
	"quickestimate/internal/storage"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RenderEstimateXLSX lays the estimate out as one sheet: a row per size
// line followed by the totals, all taken from the calculation engine.
func RenderEstimateXLSX(e storage.Estimate, filterMeters decimal.Decimal) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	set := func(col, row int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
	style := func(fromCol, toCol, row, id int) {
		from, _ := excelize.CoordinatesToCellName(fromCol, row)
		to, _ := excelize.CoordinatesToCellName(toCol, row)
		_ = f.SetCellStyle(sheet, from, to, id)
	}

	set(1, 1, e.Name)
	style(1, 1, 1, bold)
	headers := []string{"Size (ft)", "Size (m)", "PCS", "Rate", "Running (m)", "Amount"}
	for i, h := range headers {
		set(i+1, 3, h)
	}
	style(1, len(headers), 3, bold)

	summary := estimate.Summarize(e.Rows, filterMeters)
	r := 4
	for _, row := range summary.Rows {
		set(1, r, row.SizeFeet.InexactFloat64())
		set(2, r, row.SizeMeters.InexactFloat64())
		set(3, r, row.Pieces)
		set(4, r, row.Rate.InexactFloat64())
		set(5, r, row.RunningMeters.InexactFloat64())
		set(6, r, row.Amount.InexactFloat64())
		style(4, 6, r, money)
		r++
	}

	r++
	totals := []struct {
		label string
		value decimal.Decimal
	}{
		{"Total running (m)", summary.TotalRunningMeters},
		{"Grand total", summary.GrandTotal},
		{fmt.Sprintf("Total for %s m", filterMeters.String()), summary.TotalForSize},
		{fmt.Sprintf("Total excluding %s m", filterMeters.String()), summary.TotalExcludingSize},
	}
	for _, t := range totals {
		set(1, r, t.label)
		set(6, r, t.value.InexactFloat64())
		style(1, 1, r, bold)
		style(6, 6, r, money)
		r++
	}
	_ = f.SetColWidth(sheet, "A", "F", 16)

	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ExportEstimateToXLSX(e storage.Estimate, filterMeters decimal.Decimal, outputPath string) error {
	blob, err := RenderEstimateXLSX(e, filterMeters)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, blob, 0o644)
}

// ExportKey is where an estimate's workbook lives in the blob store.
func ExportKey(estimateID string) string {
	return "exports/" + estimateID + ".xlsx"
}

// FormatCurrency renders an amount with two decimals and Indian digit
// grouping: 1234567.5 becomes "₹12,34,567.50".
func FormatCurrency(d decimal.Decimal, symbol string) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	return sign + symbol + groupIndian(intPart) + "." + frac
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(append(parts, tail), ",")
}
