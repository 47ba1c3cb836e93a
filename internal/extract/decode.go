package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"quickestimate/internal"
)

var requiredRowFields = []string{"sizeFt", "pcs", "rate"}

// DecodeRows parses an {"extractedRows": [...]} document. Every row must
// carry sizeFt, pcs and rate as non-negative JSON numbers, with pcs a whole
// number that fits in an int; one bad row fails the whole document.
func DecodeRows(raw []byte, source internal.PatchSource) ([]internal.ExtractedPatch, error) {
	raw = stripCodeFence(raw)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newError(KindDecode, "decode", fmt.Errorf("response body is not a JSON object: %w", err))
	}
	rowsRaw, ok := doc["extractedRows"]
	if !ok {
		return nil, newError(KindSchema, "decode", errors.New("missing extractedRows"))
	}
	if bytes.Equal(bytes.TrimSpace(rowsRaw), []byte("null")) {
		return nil, newError(KindSchema, "decode", errors.New("extractedRows is null"))
	}
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(rowsRaw, &rows); err != nil {
		return nil, newError(KindSchema, "decode", fmt.Errorf("extractedRows is not an array of objects: %w", err))
	}

	out := make([]internal.ExtractedPatch, 0, len(rows))
	for i, row := range rows {
		if row == nil {
			return nil, newError(KindSchema, "decode", fmt.Errorf("row %d is null", i+1))
		}
		values := make([]decimal.Decimal, len(requiredRowFields))
		for j, field := range requiredRowFields {
			v, err := numberField(row, field)
			if err != nil {
				return nil, newError(KindSchema, "decode", fmt.Errorf("row %d: %w", i+1, err))
			}
			values[j] = v
		}
		if err := checkPieces(values[1]); err != nil {
			return nil, newError(KindSchema, "decode", fmt.Errorf("row %d: %w", i+1, err))
		}
		out = append(out, internal.ExtractedPatch{
			SizeFeet: values[0],
			Pieces:   values[1],
			Rate:     values[2],
			Source:   source,
		})
	}
	return out, nil
}

func numberField(row map[string]json.RawMessage, field string) (decimal.Decimal, error) {
	raw, ok := row[field]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing %s", field)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return decimal.Decimal{}, fmt.Errorf("%s is not a number: %s", field, truncate(string(raw), 32))
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s is negative: %s", field, d)
	}
	return d, nil
}

var maxPieces = decimal.NewFromInt(math.MaxInt)

// checkPieces rejects piece counts that are fractional or too large to
// store.
func checkPieces(d decimal.Decimal) error {
	if !d.IsInteger() {
		return fmt.Errorf("pcs is not a whole number: %s", d)
	}
	if d.GreaterThan(maxPieces) {
		return fmt.Errorf("pcs out of range: %s", d)
	}
	return nil
}

func stripCodeFence(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if !bytes.HasPrefix(raw, []byte("```")) {
		return raw
	}
	raw = bytes.TrimPrefix(raw, []byte("```"))
	if nl := bytes.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	}
	raw = bytes.TrimSuffix(bytes.TrimSpace(raw), []byte("```"))
	return bytes.TrimSpace(raw)
}
