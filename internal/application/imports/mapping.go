package imports

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Import columns.
const (
	ColDepartment   = "department"
	ColSubCategory  = "sub_category"
	ColFiscalPeriod = "fiscal_period"
	ColAmount       = "budgeted_amount"
	ColCurrency     = "currency"
)

var requiredColumns = []string{ColDepartment, ColFiscalPeriod, ColAmount}

type headerRule struct {
	column  string
	pattern *regexp.Regexp
}

// headerRules is checked in order; sub-category comes before department so
// "Sub Category" never lands on the department column.
var headerRules = []headerRule{
	{ColSubCategory, regexp.MustCompile(`(?i)^(sub[\s_-]*categor(y|ies)|sub[\s_-]*cat|line[\s_-]*item|gl[\s_-]*account|account)$`)},
	{ColDepartment, regexp.MustCompile(`(?i)^(department|dept\.?|cost[\s_-]*cent(er|re)|business[\s_-]*unit|team|category)$`)},
	{ColFiscalPeriod, regexp.MustCompile(`(?i)^(fiscal[\s_-]*(period|year|quarter)|period|fy|quarter|year)$`)},
	{ColAmount, regexp.MustCompile(`(?i)^((budget(ed)?|planned|allocated)[\s_-]*(amount|value|total)?|amount|allocation|total)$`)},
	{ColCurrency, regexp.MustCompile(`(?i)^(currency|ccy|curr\.?|currency[\s_-]*code)$`)},
}

// ColumnMap maps an import column to its index in the raw row.
type ColumnMap map[string]int

// MissingColumnsError lists required columns no header matched.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "Missing required columns: " + strings.Join(e.Missing, ", ")
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}

// MapHeaders matches raw headers against the rule table. The first header to
// match a column wins.
func MapHeaders(headers []string) (ColumnMap, error) {
	m := ColumnMap{}
	for i, h := range headers {
		h = strings.TrimSpace(h)
		for _, rule := range headerRules {
			if _, taken := m[rule.column]; taken {
				continue
			}
			if rule.pattern.MatchString(h) {
				m[rule.column] = i
				break
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := m[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	return m, nil
}

var (
	amountJunk     = regexp.MustCompile(`[^0-9.\-]`)
	currencyInCell = regexp.MustCompile(`(?i)\b([A-Z]{3})\b`)
)

var currencySymbols = map[string]string{"$": "USD", "£": "GBP", "€": "EUR", "¥": "JPY"}

// CleanAmount parses a spreadsheet amount such as "$1,250.50", "£ 3 000" or
// "(120.00)". It also returns the currency implied by a symbol or code, if any.
func CleanAmount(raw string) (decimal.Decimal, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, "", fmt.Errorf("amount is empty")
	}
	currency := ""
	for sym, code := range currencySymbols {
		if strings.Contains(s, sym) {
			currency = code
			break
		}
	}
	if currency == "" {
		if m := currencyInCell.FindStringSubmatch(s); m != nil {
			currency = strings.ToUpper(m[1])
		}
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	cleaned := amountJunk.ReplaceAllString(s, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, currency, fmt.Errorf("amount %q is not a number", raw)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, currency, fmt.Errorf("amount %q is not a number", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(2), currency, nil
}

// Row is one budget tuple produced by the import source.
type Row struct {
	Line         int
	Department   string
	SubCategory  string
	FiscalPeriod string
	Amount       decimal.Decimal
	Currency     string
}

// RowError reports a rejected row. Row is the 1-based spreadsheet line,
// counting the header as line 1.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ParseRows turns raw cells into rows. Blank lines are skipped; invalid lines
// become row errors.
func ParseRows(cols ColumnMap, raw [][]string, defaultCurrency string) ([]Row, []RowError) {
	var rows []Row
	var errs []RowError
	for i, cells := range raw {
		line := i + 2
		if blank(cells) {
			continue
		}
		r := Row{
			Line:         line,
			Department:   cell(cells, cols, ColDepartment),
			SubCategory:  cell(cells, cols, ColSubCategory),
			FiscalPeriod: cell(cells, cols, ColFiscalPeriod),
		}
		if r.Department == "" || r.FiscalPeriod == "" {
			errs = append(errs, RowError{Row: line, Error: "department and fiscal period are required"})
			continue
		}
		amount, implied, err := CleanAmount(cell(cells, cols, ColAmount))
		if err != nil {
			errs = append(errs, RowError{Row: line, Error: err.Error()})
			continue
		}
		if amount.IsNegative() {
			errs = append(errs, RowError{Row: line, Error: "amount cannot be negative"})
			continue
		}
		r.Amount = amount
		r.Currency = strings.ToUpper(cell(cells, cols, ColCurrency))
		if r.Currency == "" {
			r.Currency = implied
		}
		if r.Currency == "" {
			r.Currency = defaultCurrency
		}
		if len(r.Currency) != 3 {
			errs = append(errs, RowError{Row: line, Error: fmt.Sprintf("invalid currency %q", r.Currency)})
			continue
		}
		rows = append(rows, r)
	}
	return rows, errs
}

func cell(cells []string, cols ColumnMap, col string) string {
	i, ok := cols[col]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
