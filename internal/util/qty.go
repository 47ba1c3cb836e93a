package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	numberPattern = regexp.MustCompile(`(?:^|[^0-9.,])(\d+(?:,\d{2,3})*,\d{3}(?:\.\d+)?|\d+(?:[.,]\d+)?)`)
	groupedRe     = regexp.MustCompile(`^\d+(?:,\d{2,3})*,\d{3}(?:\.\d+)?$`)
	currencyRe    = regexp.MustCompile(`(?i)(₹|rs\.?|inr)`)
)

// ParseNumber reads a single numeric token such as "1,200.50",
// "1,20,000" (lakh grouping), "1.5" or "1,5". Currency markers and
// surrounding spaces are ignored. The second return value is false when
// the input holds no usable number.
func ParseNumber(input string) (decimal.Decimal, bool) {
	s := strings.ReplaceAll(input, " ", " ")
	s = currencyRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalizeNumericToken(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FindNumbers returns every number in the line, left to right.
func FindNumbers(line string) []decimal.Decimal {
	line = strings.ReplaceAll(line, " ", " ")
	matches := numberPattern.FindAllStringSubmatch(line, -1)
	out := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		if d, ok := ParseNumber(m[1]); ok {
			out = append(out, d)
		}
	}
	return out
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if groupedRe.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}

