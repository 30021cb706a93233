package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepartmentThresholds(t *testing.T) {
	got, err := ParseDepartmentThresholds(" Engineering=20000, Sales = 5000 ,")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got["engineering"].Equal(decimal.NewFromInt(20000)))
	assert.True(t, got["sales"].Equal(decimal.NewFromInt(5000)))
}

func TestParseDepartmentThresholds_Malformed(t *testing.T) {
	_, err := ParseDepartmentThresholds("Engineering")
	assert.Error(t, err)

	_, err = ParseDepartmentThresholds("Engineering=-5")
	assert.Error(t, err)
}

func TestParseCurrencyRates(t *testing.T) {
	got, err := ParseCurrencyRates("usd:gbp=0.79,GBP:USD=1.27")
	require.NoError(t, err)
	assert.True(t, got["USD:GBP"].Equal(decimal.RequireFromString("0.79")))
	assert.True(t, got["GBP:USD"].Equal(decimal.RequireFromString("1.27")))

	_, err = ParseCurrencyRates("USD=1")
	assert.Error(t, err)
	_, err = ParseCurrencyRates("USD:EUR=0")
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ActionCommit, cfg.Approval.AutoApproveAction)
	assert.Equal(t, 48*time.Hour, cfg.Approval.PendingWindow)
	assert.True(t, cfg.Approval.CriticalUtilizationPercent.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 10, cfg.Import.MaxRowErrors)
	assert.Equal(t, 30*time.Second, cfg.Import.Timeout)
	assert.Contains(t, cfg.Approval.CurrencyRates, "USD:GBP")
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DEPARTMENT_THRESHOLDS", "Engineering=20000")
	t.Setenv("AUTO_APPROVE_ACTION", "reserve")
	t.Setenv("PENDING_WINDOW", "24h")
	t.Setenv("IMPORT_MAX_ROW_ERRORS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ActionReserve, cfg.Approval.AutoApproveAction)
	assert.Equal(t, 24*time.Hour, cfg.Approval.PendingWindow)
	assert.Equal(t, 3, cfg.Import.MaxRowErrors)
	assert.True(t, cfg.Approval.DepartmentThresholds["engineering"].Equal(decimal.NewFromInt(20000)))
}

func TestLoad_InvalidAction(t *testing.T) {
	t.Setenv("AUTO_APPROVE_ACTION", "spend")
	_, err := Load()
	assert.Error(t, err)
}
