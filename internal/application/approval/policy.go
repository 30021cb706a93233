package approval

import (
	"strings"

	"budget-tracker/internal/config"

	"github.com/shopspring/decimal"
)

// Policy holds the auto-approval limits.
type Policy struct {
	DefaultThreshold           decimal.Decimal
	DepartmentThresholds       map[string]decimal.Decimal
	CriticalUtilizationPercent decimal.Decimal
}

// PolicyFromConfig copies the approval limits out of the loaded config.
func PolicyFromConfig(cfg config.ApprovalConfig) Policy {
	return Policy{
		DefaultThreshold:           cfg.DefaultThreshold,
		DepartmentThresholds:       cfg.DepartmentThresholds,
		CriticalUtilizationPercent: cfg.CriticalUtilizationPercent,
	}
}

// ThresholdFor returns the department's threshold, falling back to the default.
// Lookup ignores case.
func (p Policy) ThresholdFor(department string) decimal.Decimal {
	if t, ok := p.DepartmentThresholds[strings.ToLower(strings.TrimSpace(department))]; ok {
		return t
	}
	return p.DefaultThreshold
}
