package util

import "testing"

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Size (in Feet)":  "size in feet",
		"  PCS  ":         "pcs",
		"Rate/Mtr.":       "rate mtr.",
		"Size in Meter":   "size in meter",
		"Running Mtr": "running mtr",
	}
	for in, want := range cases {
		if got := NormalizeHeader(in); got != want {
			t.Fatalf("NormalizeHeader(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("a\r\n\n  b  \n")
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("lines=%q", lines)
	}
}
