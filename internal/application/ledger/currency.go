package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rates maps "FROM:TO" to the multiplier converting FROM into TO.
type Rates map[string]decimal.Decimal

// Convert returns amount expressed in to. Pairs missing from the table are
// returned unchanged with ok=false.
func (r Rates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" || from == to {
		return amount, true
	}
	rate, ok := r[from+":"+to]
	if !ok {
		return amount, false
	}
	return amount.Mul(rate).Round(2), true
}
