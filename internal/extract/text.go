package extract

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"quickestimate/internal"
	"quickestimate/internal/util"
)

// TextExtractor reads typed sheets, one size row per line:
//
//	8 4 120          size ft, pcs, rate
//	8 2.5 4 120      size ft, size m, pcs, rate
//
// Lines that do not start with a digit are treated as captions or notes.
type TextExtractor struct{}

func (TextExtractor) Extract(ctx context.Context, data []byte) ([]internal.ExtractedPatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("text", err)
	}
	patches, err := parseTextRows(string(data), internal.SourceText)
	if err != nil {
		return nil, newError(KindSchema, "text", err)
	}
	return patches, nil
}

func parseTextRows(text string, source internal.PatchSource) ([]internal.ExtractedPatch, error) {
	out := []internal.ExtractedPatch{}
	for lineNo, line := range util.SplitLines(text) {
		if !startsWithDigit(line) {
			continue
		}
		nums := util.FindNumbers(line)
		var patch internal.ExtractedPatch
		switch len(nums) {
		case 3:
			patch = internal.ExtractedPatch{SizeFeet: nums[0], Pieces: nums[1], Rate: nums[2]}
		case 4:
			patch = internal.ExtractedPatch{SizeFeet: nums[0], Pieces: nums[2], Rate: nums[3]}
		default:
			return nil, fmt.Errorf("line %d: want 3 or 4 numbers, got %d: %q", lineNo+1, len(nums), line)
		}
		if err := checkPieces(patch.Pieces); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		patch.Source = source
		out = append(out, patch)
	}
	if len(out) == 0 {
		return nil, errors.New("no size rows found")
	}
	return out, nil
}

func startsWithDigit(line string) bool {
	r, _ := utf8.DecodeRuneInString(line)
	return unicode.IsDigit(r)
}
