package estimate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"quickestimate/internal"
	"quickestimate/internal/catalog"
)

// Mode selects the row layout of a Store.
type Mode string

const (
	// ModeFree starts empty and allows rows to be added and removed.
	ModeFree Mode = "free"
	// ModeFixed holds exactly one row per catalog size.
	ModeFixed Mode = "fixed"
)

func ParseMode(v string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(v))) {
	case ModeFree:
		return ModeFree, nil
	case ModeFixed, "":
		return ModeFixed, nil
	default:
		return "", fmt.Errorf("unsupported estimate mode: %s", v)
	}
}

var (
	ErrFixedLayout = errors.New("estimate: rows cannot be added or removed in fixed mode")
	ErrInvalidSize = errors.New("estimate: size is not in the catalog")
)

// UnmatchedPolicy decides what happens to an extracted patch whose size
// has no row to land on.
type UnmatchedPolicy string

const (
	UnmatchedDrop   UnmatchedPolicy = "drop"
	UnmatchedAppend UnmatchedPolicy = "append"
)

func ParseUnmatchedPolicy(v string) (UnmatchedPolicy, error) {
	switch UnmatchedPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case UnmatchedDrop, "":
		return UnmatchedDrop, nil
	case UnmatchedAppend:
		return UnmatchedAppend, nil
	default:
		return "", fmt.Errorf("unsupported unmatched policy: %s", v)
	}
}

type ApplyResult struct {
	Patched  []RowID
	Appended []RowID
	Dropped  []internal.ExtractedPatch
}

// Store is the ordered, mutable row list of one estimate. Mutations are
// serialized; readers always get copies.
type Store struct {
	mu      sync.Mutex
	mode    Mode
	catalog *catalog.Catalog
	rows    []Row
}

// NewStore returns a store in its initial state: empty for ModeFree, one
// zeroed row per catalog size for ModeFixed. A nil catalog means
// catalog.Default().
func NewStore(mode Mode, cat *catalog.Catalog) *Store {
	if cat == nil {
		cat = catalog.Default()
	}
	s := &Store{mode: mode, catalog: cat}
	s.rows = s.initialRows()
	return s
}

func (s *Store) Mode() Mode { return s.mode }

func (s *Store) Catalog() *catalog.Catalog { return s.catalog }

// CanonicalRows builds one zeroed row per catalog size, in catalog order.
func CanonicalRows(cat *catalog.Catalog) []Row {
	opts := cat.Options()
	rows := make([]Row, 0, len(opts))
	for _, opt := range opts {
		rows = append(rows, Row{
			ID:         nextRowID(),
			SizeFeet:   opt.Feet,
			SizeMeters: opt.Meters,
			Rate:       decimal.Zero,
		})
	}
	return rows
}

func (s *Store) initialRows() []Row {
	if s.mode == ModeFixed {
		return CanonicalRows(s.catalog)
	}
	return []Row{}
}

func (s *Store) List() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) Get(id RowID) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.rows[i], true
	}
	return Row{}, false
}

// AddRow appends a row with a fresh id. Size defaults to the first catalog
// entry, pieces and rate to 0.
func (s *Store) AddRow(p RowPatch) (Row, error) {
	if s.mode == ModeFixed {
		return Row{}, ErrFixedLayout
	}

	var row Row
	if p.SizeFeet == nil {
		if p.SizeMeters != nil {
			return Row{}, fmt.Errorf("%w: meters given without feet", ErrInvalidSize)
		}
		first, ok := s.catalog.First()
		if !ok {
			return Row{}, fmt.Errorf("%w: catalog is empty", ErrInvalidSize)
		}
		row.SizeFeet, row.SizeMeters = first.Feet, first.Meters
	} else {
		feet, meters, custom, err := s.resolveSize(*p.SizeFeet, p.SizeMeters)
		if err != nil {
			return Row{}, err
		}
		row.SizeFeet, row.SizeMeters, row.Custom = feet, meters, custom
	}
	row.Rate = decimal.Zero
	if p.Pieces != nil {
		row.Pieces = clampPieces(*p.Pieces)
	}
	if p.Rate != nil {
		row.Rate = clampRate(*p.Rate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = nextRowID()
	s.rows = append(s.rows, row)
	return row, nil
}

// RemoveRow deletes the row with id. Unknown ids are ignored.
func (s *Store) RemoveRow(id RowID) error {
	if s.mode == ModeFixed {
		return ErrFixedLayout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		s.rows = append(s.rows[:i:i], s.rows[i+1:]...)
	}
	return nil
}

// UpdateRow merges p into the row with id. A size change re-derives the
// meter constant in the same critical section. Unknown ids are ignored.
func (s *Store) UpdateRow(id RowID, p RowPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	row := s.rows[i]

	if p.touchesSize() {
		if s.mode == ModeFixed {
			return fmt.Errorf("%w: sizes are fixed", ErrFixedLayout)
		}
		feet := row.SizeFeet
		if p.SizeFeet != nil {
			feet = *p.SizeFeet
		}
		meters := p.SizeMeters
		if p.SizeFeet == nil && meters != nil && !row.Custom {
			return fmt.Errorf("%w: meters are derived for catalog size %s", ErrInvalidSize, row.SizeFeet)
		}
		if meters == nil && row.Custom && p.SizeFeet == nil {
			meters = &row.SizeMeters
		}
		f, m, custom, err := s.resolveSize(feet, meters)
		if err != nil {
			return err
		}
		row.SizeFeet, row.SizeMeters, row.Custom = f, m, custom
	}
	if p.Pieces != nil {
		row.Pieces = clampPieces(*p.Pieces)
	}
	if p.Rate != nil {
		row.Rate = clampRate(*p.Rate)
	}

	s.rows[i] = row
	return nil
}

// ResetAll replaces the whole collection. Rows without an id, or with an id
// already used earlier in the slice, get a fresh one. Catalog-backed rows
// have their meters re-derived. Explicit ids are observed before any fresh
// id is handed out, so loaded ids never change.
func (s *Store) ResetAll(rows []Row) {
	for _, r := range rows {
		if r.ID != 0 {
			observeRowID(r.ID)
		}
	}

	next := make([]Row, 0, len(rows))
	seen := make(map[RowID]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; r.ID == 0 || dup {
			r.ID = nextRowID()
		}
		seen[r.ID] = struct{}{}
		if m, ok := s.catalog.Lookup(r.SizeFeet); ok {
			r.SizeMeters, r.Custom = m, false
		} else {
			r.Custom = true
		}
		r.Pieces = clampPieces(r.Pieces)
		r.Rate = clampRate(r.Rate)
		next = append(next, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = next
}

// Reset returns the store to its initial layout.
func (s *Store) Reset() {
	rows := s.initialRows()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

// ApplyPatches writes extracted pieces and rates onto rows with the same
// feet size. Each patch takes the first matching row not already patched
// in this call. Patches without a row are dropped, or appended when the
// policy allows it and the store is in free mode. All changes land at once.
func (s *Store) ApplyPatches(patches []internal.ExtractedPatch, policy UnmatchedPolicy) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Row, len(s.rows))
	copy(next, s.rows)
	used := make(map[int]struct{}, len(patches))
	res := ApplyResult{}

	for _, p := range patches {
		pieces, _ := piecesFrom(p.Pieces)
		rate := clampRate(p.Rate)

		idx := -1
		for i, r := range next {
			if _, taken := used[i]; taken {
				continue
			}
			if r.SizeFeet.Equal(p.SizeFeet) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			used[idx] = struct{}{}
			next[idx].Pieces = pieces
			next[idx].Rate = rate
			res.Patched = append(res.Patched, next[idx].ID)
			continue
		}

		meters, known := s.catalog.Lookup(p.SizeFeet)
		if policy != UnmatchedAppend || s.mode == ModeFixed || !known {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		row := Row{ID: nextRowID(), SizeFeet: p.SizeFeet, SizeMeters: meters, Pieces: pieces, Rate: rate}
		next = append(next, row)
		used[len(next)-1] = struct{}{}
		res.Appended = append(res.Appended, row.ID)
	}

	s.rows = next
	return res
}

func (s *Store) resolveSize(feet decimal.Decimal, meters *decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool, error) {
	if m, ok := s.catalog.Lookup(feet); ok {
		return feet, m, false, nil
	}
	if meters == nil {
		return decimal.Decimal{}, decimal.Decimal{}, false, fmt.Errorf("%w: %s ft", ErrInvalidSize, feet)
	}
	if feet.IsNegative() || meters.IsNegative() {
		return decimal.Decimal{}, decimal.Decimal{}, false, fmt.Errorf("%w: negative size", ErrInvalidSize)
	}
	return feet, *meters, true, nil
}

func (s *Store) indexOf(id RowID) int {
	for i, r := range s.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}
