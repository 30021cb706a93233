package approval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPolicy() Policy {
	return Policy{
		DefaultThreshold: d("5000"),
		DepartmentThresholds: map[string]decimal.Decimal{
			"engineering": d("20000"),
			"sales":       d("5000"),
		},
		CriticalUtilizationPercent: d("90"),
	}
}

func snap(budgeted, committed, reserved, requested string) Snapshot {
	return Snapshot{
		Found:          true,
		BudgetIDs:      []uuid.UUID{uuid.New()},
		TargetBudgetID: uuid.New(),
		Currency:       "USD",
		Requested:      d(requested),
		Converted:      true,
		Budgeted:       d(budgeted),
		Committed:      d(committed),
		Reserved:       d(reserved),
	}
}

func TestDecide_NoBudget(t *testing.T) {
	got := Decide(Snapshot{Requested: d("100")}, "Marketing", "FY2025", testPolicy())
	assert.Equal(t, OutcomeRejected, got.Outcome)
	assert.Contains(t, got.Reason, "No budget found")
	assert.Nil(t, got.TargetBudgetID)
}

func TestDecide_InsufficientBudget(t *testing.T) {
	got := Decide(snap("10000", "0", "9000", "5000"), "Engineering", "FY2025", testPolicy())
	assert.Equal(t, OutcomeRejected, got.Outcome)
	assert.Contains(t, got.Reason, "Insufficient budget")
	assert.True(t, got.Available.Equal(d("1000")))
	assert.True(t, got.Requested.Equal(d("5000")))
}

func TestDecide_PendingHoldReducesAvailable(t *testing.T) {
	s := snap("10000", "0", "0", "6000")
	s.PendingHold = d("5000")
	got := Decide(s, "Engineering", "FY2025", testPolicy())
	assert.Equal(t, OutcomeRejected, got.Outcome)
	assert.True(t, got.Available.Equal(d("5000")))
}

func TestDecide_ExactAvailableIsNotRejected(t *testing.T) {
	got := Decide(snap("100000", "0", "95000", "5000"), "Engineering", "FY2025", testPolicy())
	assert.NotEqual(t, OutcomeRejected, got.Outcome)
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	p := testPolicy()
	atLimit := Decide(snap("100000", "0", "0", "5000"), "Sales", "FY2025", p)
	assert.Equal(t, OutcomeAutoApproved, atLimit.Outcome)
	assert.True(t, atLimit.CanAutoApprove)

	overLimit := Decide(snap("100000", "0", "0", "5000.01"), "Sales", "FY2025", p)
	assert.Equal(t, OutcomePending, overLimit.Outcome)
	assert.False(t, overLimit.CanAutoApprove)
	assert.Contains(t, overLimit.Reason, "threshold")
}

func TestDecide_CriticalUtilizationBoundary(t *testing.T) {
	p := testPolicy()
	at90 := Decide(snap("10000", "8000", "1000", "100"), "Engineering", "FY2025", p)
	assert.True(t, at90.UtilizationPercent.Equal(d("90")))
	assert.False(t, at90.CanAutoApprove)
	assert.Equal(t, OutcomePending, at90.Outcome)
	assert.Contains(t, at90.Reason, "critical")

	below := Decide(snap("10000", "8999", "0", "100"), "Engineering", "FY2025", p)
	assert.True(t, below.CanAutoApprove)
	assert.Equal(t, OutcomeAutoApproved, below.Outcome)
}

func TestDecide_ZeroBudgetIsFullyUtilized(t *testing.T) {
	s := snap("0", "0", "0", "0")
	assert.True(t, s.UtilizationPercent().Equal(d("100")))
}

func TestDecide_DepartmentThresholds(t *testing.T) {
	p := testPolicy()
	eng := Decide(snap("100000", "0", "0", "10000"), "Engineering", "FY2025", p)
	sales := Decide(snap("100000", "0", "0", "10000"), "Sales", "FY2025", p)
	assert.Equal(t, OutcomeAutoApproved, eng.Outcome)
	assert.Equal(t, OutcomePending, sales.Outcome)
	assert.True(t, eng.Threshold.Equal(d("20000")))
	assert.True(t, sales.Threshold.Equal(d("5000")))
}

func TestPolicy_ThresholdFallsBackToDefault(t *testing.T) {
	p := testPolicy()
	assert.True(t, p.ThresholdFor("ENGINEERING").Equal(d("20000")))
	assert.True(t, p.ThresholdFor("Legal").Equal(d("5000")))
}

type stubSource struct {
	s   Snapshot
	got Input
}

func (f *stubSource) Snapshot(_ context.Context, in Input) (Snapshot, error) {
	f.got = in
	return f.s, nil
}

func TestEngine_Evaluate(t *testing.T) {
	src := &stubSource{s: snap("100000", "0", "0", "10000")}
	e := &Engine{Source: src, Policy: testPolicy()}
	in := Input{
		Selector: Selector{CustomerID: uuid.New(), Department: "Engineering", FiscalPeriod: "FY2025"},
		Amount:   d("10000"),
		Currency: "USD",
	}
	dec, s, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoApproved, dec.Outcome)
	assert.Equal(t, src.s.TargetBudgetID, *dec.TargetBudgetID)
	assert.Equal(t, src.s.TargetBudgetID, s.TargetBudgetID)
	assert.Equal(t, "Engineering", src.got.Department)
}
