package extraction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeAmount parses a bank-statement amount string into a canonical
// decimal, accepting both locale conventions ("1.234,56" and "1,234.56")
// plus plain forms like "25.50" or "1250". Currency symbols and
// surrounding noise are stripped first.
func NormalizeAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")

	// Drop currency markers and whitespace inside the number.
	for _, junk := range []string{"$", "€", "₡", "S/", "Bs", "RD$", "USD", "MXN", "PEN", " ", " "} {
		s = strings.ReplaceAll(s, junk, "")
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", raw)
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		// Both present: the rightmost separator is the decimal point.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		// Lone comma: decimal separator when followed by 1-2 digits,
		// thousands grouping otherwise.
		if len(s)-comma-1 <= 2 && strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case dot >= 0:
		// Lone dots grouping thousands ("1.234.567") collapse; a single
		// dot followed by 1-2 digits is already canonical.
		if strings.Count(s, ".") > 1 || len(s)-dot-1 == 3 && len(s) > 4 && isGrouped(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	return amount, nil
}

// isGrouped reports whether every dot-separated group after the first has
// exactly three digits, i.e. the dots are thousands separators.
func isGrouped(s string) bool {
	parts := strings.Split(s, ".")
	if parts[0] == "0" || parts[0] == "" || len(parts[0]) > 3 {
		return false
	}
	for _, part := range parts[1:] {
		if len(part) != 3 {
			return false
		}
	}
	return true
}
