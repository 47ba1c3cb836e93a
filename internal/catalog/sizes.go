// Package catalog holds the fixed feet-to-meter size table used to price
// rows. The table is data, not configuration.
package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type SizeOption struct {
	Feet   decimal.Decimal `json:"feet"`
	Meters decimal.Decimal `json:"meters"`
}

var ErrDuplicateSize = errors.New("catalog: duplicate feet size")

// Catalog maps a feet size to its meter constant. Lookups are exact.
type Catalog struct {
	options []SizeOption
	index   map[string]decimal.Decimal
}

var defaultOptions = []SizeOption{
	{Feet: decimal.NewFromInt(6), Meters: decimal.RequireFromString("1.75")},
	{Feet: decimal.RequireFromString("6.5"), Meters: decimal.NewFromInt(2)},
	{Feet: decimal.NewFromInt(8), Meters: decimal.RequireFromString("2.5")},
	{Feet: decimal.NewFromInt(10), Meters: decimal.NewFromInt(3)},
	{Feet: decimal.NewFromInt(12), Meters: decimal.RequireFromString("3.6")},
}

var std = MustNew(defaultOptions...)

// Default returns the canonical five-size catalog.
func Default() *Catalog { return std }

func New(options ...SizeOption) (*Catalog, error) {
	c := &Catalog{
		options: make([]SizeOption, 0, len(options)),
		index:   make(map[string]decimal.Decimal, len(options)),
	}
	for _, opt := range options {
		k := key(opt.Feet)
		if _, exists := c.index[k]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSize, opt.Feet)
		}
		c.index[k] = opt.Meters
		c.options = append(c.options, opt)
	}
	return c, nil
}

func MustNew(options ...SizeOption) *Catalog {
	c, err := New(options...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(feet decimal.Decimal) (decimal.Decimal, bool) {
	m, ok := c.index[key(feet)]
	return m, ok
}

func (c *Catalog) Contains(feet decimal.Decimal) bool {
	_, ok := c.index[key(feet)]
	return ok
}

// First returns the option new rows default to. ok is false for an empty
// catalog.
func (c *Catalog) First() (SizeOption, bool) {
	if len(c.options) == 0 {
		return SizeOption{}, false
	}
	return c.options[0], true
}

func (c *Catalog) Options() []SizeOption {
	out := make([]SizeOption, len(c.options))
	copy(out, c.options)
	return out
}

func (c *Catalog) Len() int { return len(c.options) }

// key canonicalises a decimal so 6.5 and 6.50 share an entry.
func key(d decimal.Decimal) string {
	return d.String()
}
