package catalog

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefaultLookup(t *testing.T) {
	cases := []struct {
		feet   string
		meters string
	}{
		{"6", "1.75"},
		{"6.5", "2"},
		{"8", "2.5"},
		{"10", "3"},
		{"12", "3.6"},
		{"6.50", "2"},
		{"12.0", "3.6"},
	}
	c := Default()
	for _, tc := range cases {
		got, ok := c.Lookup(dec(tc.feet))
		if !ok {
			t.Fatalf("feet %s not found", tc.feet)
		}
		if !got.Equal(dec(tc.meters)) {
			t.Fatalf("feet %s: got %s want %s", tc.feet, got, tc.meters)
		}
	}
}

func TestLookupIsExact(t *testing.T) {
	c := Default()
	for _, feet := range []string{"6.49", "7", "0", "12.01"} {
		if _, ok := c.Lookup(dec(feet)); ok {
			t.Fatalf("feet %s unexpectedly found", feet)
		}
	}
}

func TestFirstAndOrder(t *testing.T) {
	c := Default()
	first, ok := c.First()
	if !ok || !first.Feet.Equal(dec("6")) || !first.Meters.Equal(dec("1.75")) {
		t.Fatalf("first=%+v ok=%v", first, ok)
	}
	opts := c.Options()
	if len(opts) != 5 || !opts[4].Feet.Equal(dec("12")) {
		t.Fatalf("options=%+v", opts)
	}
	opts[0].Meters = dec("99")
	if m, _ := c.Lookup(dec("6")); !m.Equal(dec("1.75")) {
		t.Fatalf("Options leaked internal slice")
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(
		SizeOption{Feet: dec("8"), Meters: dec("2.5")},
		SizeOption{Feet: dec("8.0"), Meters: dec("2.4")},
	)
	if !errors.Is(err, ErrDuplicateSize) {
		t.Fatalf("err=%v", err)
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := MustNew()
	if _, ok := c.First(); ok {
		t.Fatal("empty catalog has a first option")
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d", c.Len())
	}
}
