package estimate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func sameRows(t *testing.T, got, want []Row) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Pieces != w.Pieces || g.Custom != w.Custom ||
			!g.SizeFeet.Equal(w.SizeFeet) || !g.SizeMeters.Equal(w.SizeMeters) || !g.Rate.Equal(w.Rate) {
			t.Fatalf("row %d: got %+v want %+v", i, g, w)
		}
	}
}

func decFromInt(v int) decimal.Decimal { return decimal.NewFromInt(int64(v)) }
