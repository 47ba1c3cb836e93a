package estimate

import "github.com/shopspring/decimal"

// Rounding is applied at every stage: running meters are rounded to two
// places before they are multiplied by the rate, and the amount is rounded
// again. Halves round away from zero, which is half-up for the
// non-negative values rows can hold.
const roundPlaces = 2

// DefaultFilterMeters is the meter constant the sheet reports separately.
var DefaultFilterMeters = decimal.RequireFromString("3.6")

type CalculatedRow struct {
	Row
	RunningMeters decimal.Decimal `json:"runningMeters"`
	Amount        decimal.Decimal `json:"amount"`
}

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(roundPlaces)
}

func Calculate(r Row) CalculatedRow {
	running := Round2(r.SizeMeters.Mul(decimal.NewFromInt(int64(r.Pieces))))
	return CalculatedRow{
		Row:           r,
		RunningMeters: running,
		Amount:        Round2(running.Mul(r.Rate)),
	}
}

func CalculateAll(rows []Row) []CalculatedRow {
	out := make([]CalculatedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, Calculate(r))
	}
	return out
}

func GrandTotal(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(Calculate(r).Amount)
	}
	return total
}

func TotalRunningMeters(rows []Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(Calculate(r).RunningMeters)
	}
	return total
}

// TotalForSize sums running meters of rows whose meter constant is meters.
func TotalForSize(rows []Row, meters decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if r.SizeMeters.Equal(meters) {
			total = total.Add(Calculate(r).RunningMeters)
		}
	}
	return total
}

// TotalExcludingSize sums running meters of every other row.
func TotalExcludingSize(rows []Row, meters decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if !r.SizeMeters.Equal(meters) {
			total = total.Add(Calculate(r).RunningMeters)
		}
	}
	return total
}

type Summary struct {
	Rows               []CalculatedRow `json:"rows"`
	GrandTotal         decimal.Decimal `json:"grandTotal"`
	TotalRunningMeters decimal.Decimal `json:"totalRunningMeters"`
	FilterMeters       decimal.Decimal `json:"filterMeters"`
	TotalForSize       decimal.Decimal `json:"totalForSize"`
	TotalExcludingSize decimal.Decimal `json:"totalExcludingSize"`
}

// Summarize derives every figure the sheet shows from rows in one pass.
func Summarize(rows []Row, filterMeters decimal.Decimal) Summary {
	sum := Summary{
		Rows:               CalculateAll(rows),
		GrandTotal:         decimal.Zero,
		TotalRunningMeters: decimal.Zero,
		FilterMeters:       filterMeters,
		TotalForSize:       decimal.Zero,
		TotalExcludingSize: decimal.Zero,
	}
	for _, c := range sum.Rows {
		sum.GrandTotal = sum.GrandTotal.Add(c.Amount)
		sum.TotalRunningMeters = sum.TotalRunningMeters.Add(c.RunningMeters)
		if c.SizeMeters.Equal(filterMeters) {
			sum.TotalForSize = sum.TotalForSize.Add(c.RunningMeters)
		} else {
			sum.TotalExcludingSize = sum.TotalExcludingSize.Add(c.RunningMeters)
		}
	}
	return sum
}

// Summary reads the current rows and summarizes them.
func (s *Store) Summary(filterMeters decimal.Decimal) Summary {
	return Summarize(s.List(), filterMeters)
}
