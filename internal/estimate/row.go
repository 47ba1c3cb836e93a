// Package estimate holds the editable row list of an estimate sheet and
// the pure calculations derived from it.
package estimate

import (
	"math"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"quickestimate/internal/util"
)

type RowID uint64

// Row is one size line of the sheet. SizeMeters always equals the catalog
// constant for SizeFeet unless Custom is set.
type Row struct {
	ID         RowID           `json:"id"`
	SizeFeet   decimal.Decimal `json:"sizeFeet"`
	SizeMeters decimal.Decimal `json:"sizeMeters"`
	Pieces     int             `json:"pieces"`
	Rate       decimal.Decimal `json:"rate"`
	Custom     bool            `json:"custom,omitempty"`
}

// RowPatch carries the fields to change; nil fields are left alone.
type RowPatch struct {
	SizeFeet   *decimal.Decimal
	SizeMeters *decimal.Decimal
	Pieces     *int
	Rate       *decimal.Decimal
}

func (p RowPatch) touchesSize() bool {
	return p.SizeFeet != nil || p.SizeMeters != nil
}

var lastRowID atomic.Uint64

func nextRowID() RowID {
	return RowID(lastRowID.Add(1))
}

// observeRowID moves the counter past id so rows loaded from storage never
// collide with rows created afterwards.
func observeRowID(id RowID) {
	for {
		cur := lastRowID.Load()
		if uint64(id) <= cur {
			return
		}
		if lastRowID.CompareAndSwap(cur, uint64(id)) {
			return
		}
	}
}

// ParsePieces converts free-form input to a piece count. Empty,
// unparseable, negative and out-of-range input all give 0; fractions are
// truncated.
func ParsePieces(input string) int {
	d, ok := util.ParseNumber(input)
	if !ok {
		return 0
	}
	n, _ := piecesFrom(d)
	return n
}

var maxPieces = decimal.NewFromInt(math.MaxInt)

// piecesFrom truncates d to a count. ok is false, and the count 0, when d
// is negative or does not fit in an int.
func piecesFrom(d decimal.Decimal) (int, bool) {
	if d.IsNegative() || d.GreaterThan(maxPieces) {
		return 0, false
	}
	return int(d.IntPart()), true
}

// ParseRate converts free-form input to a rate. Empty, unparseable and
// negative input all give 0.
func ParseRate(input string) decimal.Decimal {
	d, ok := util.ParseNumber(input)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func clampPieces(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampRate(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func Int(v int) *int { return &v }

func Dec(v decimal.Decimal) *decimal.Decimal { return &v }
