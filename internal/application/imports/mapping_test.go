package imports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeaders_Synonyms(t *testing.T) {
	cols, err := MapHeaders([]string{"Cost Center", "Sub Category", "FY", "Budgeted Amount", "CCY"})
	require.NoError(t, err)
	assert.Equal(t, 0, cols[ColDepartment])
	assert.Equal(t, 1, cols[ColSubCategory])
	assert.Equal(t, 2, cols[ColFiscalPeriod])
	assert.Equal(t, 3, cols[ColAmount])
	assert.Equal(t, 4, cols[ColCurrency])
}

func TestMapHeaders_Missing(t *testing.T) {
	_, err := MapHeaders([]string{"Department", "Notes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))

	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{ColFiscalPeriod, ColAmount}, missing.Missing)
}

func TestCleanAmount(t *testing.T) {
	cases := []struct {
		raw      string
		want     string
		currency string
	}{
		{"1250", "1250.00", ""},
		{"$1,250.50", "1250.50", "USD"},
		{"£ 3 000", "3000.00", "GBP"},
		{"(120.00)", "-120.00", ""},
		{"99.999 EUR", "100.00", "EUR"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, cur, err := CleanAmount(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.StringFixed(2))
			assert.Equal(t, tc.currency, cur)
		})
	}

	_, _, err := CleanAmount("n/a")
	assert.Error(t, err)
	_, _, err = CleanAmount("  ")
	assert.Error(t, err)
}

func TestParseRows(t *testing.T) {
	cols := ColumnMap{ColDepartment: 0, ColSubCategory: 1, ColFiscalPeriod: 2, ColAmount: 3}
	rows, errs := ParseRows(cols, [][]string{
		{"Engineering", "", "FY2025", "$50,000"},
		{"", "", "", ""},
		{"Sales", "Travel", "FY2025", "-5"},
		{"Marketing", "", "", "100"},
		{"Legal", "", "FY2025", "2,000"},
	}, "GBP")

	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "USD", rows[0].Currency)
	assert.Equal(t, "50000.00", rows[0].Amount.StringFixed(2))
	assert.Equal(t, 6, rows[1].Line)
	assert.Equal(t, "GBP", rows[1].Currency)

	require.Len(t, errs, 2)
	assert.Equal(t, 4, errs[0].Row)
	assert.Equal(t, 5, errs[1].Row)
}
