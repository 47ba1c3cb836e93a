package util

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "integer", input: "120", want: "120", ok: true},
		{name: "decimal dot", input: "1.5", want: "1.5", ok: true},
		{name: "decimal comma", input: "1,5", want: "1.5", ok: true},
		{name: "thousand comma", input: "1,200", want: "1200", ok: true},
		{name: "thousand comma with cents", input: "1,200.50", want: "1200.5", ok: true},
		{name: "lakh grouping", input: "1,20,000", want: "120000", ok: true},
		{name: "dot is decimal", input: "2.500", want: "2.5", ok: true},
		{name: "rupee prefix", input: "₹ 450", want: "450", ok: true},
		{name: "empty", input: "   ", ok: false},
		{name: "garbage", input: "abc", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseNumber(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok=%v want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestFindNumbersKeepsSpaceSeparatedColumns(t *testing.T) {
	got := FindNumbers("8 4 120")
	if len(got) != 3 {
		t.Fatalf("len=%d values=%v", len(got), got)
	}
}

func TestFindNumbers(t *testing.T) {
	got := FindNumbers("6.5 ft | 2 m | 14 pcs | 1,250")
	want := []string{"6.5", "2", "14", "1250"}
	if len(got) != len(want) {
		t.Fatalf("len=%d values=%v", len(got), got)
	}
	for i, w := range want {
		if !got[i].Equal(decimal.RequireFromString(w)) {
			t.Fatalf("idx %d got %s want %s", i, got[i], w)
		}
	}
}
