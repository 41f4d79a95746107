// Package fines computes late-return penalties.
package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy charges UnitRate for every started day past due. A zero Cap leaves
// the fine uncapped.
type Policy struct {
	UnitRate decimal.Decimal
	Cap      decimal.Decimal
}

// DefaultPolicy charges one currency unit per day with no cap.
func DefaultPolicy() Policy {
	return Policy{UnitRate: decimal.NewFromInt(1)}
}

// NewPolicy builds a policy; negative inputs are treated as zero.
func NewPolicy(unitRate, capAmount decimal.Decimal) Policy {
	if unitRate.IsNegative() {
		unitRate = decimal.Zero
	}
	if capAmount.IsNegative() {
		capAmount = decimal.Zero
	}
	return Policy{UnitRate: unitRate, Cap: capAmount}
}

// Compute returns the fine owed for a loan due at dueAt and returned at
// returnAt. A nil returnAt, or a return on or before the due time, owes nothing.
func (p Policy) Compute(dueAt time.Time, returnAt *time.Time) decimal.Decimal {
	if returnAt == nil {
		return decimal.Zero
	}
	days := DaysLate(dueAt, *returnAt)
	if days == 0 {
		return decimal.Zero
	}
	fine := p.UnitRate.Mul(decimal.NewFromInt(days))
	if p.Cap.IsPositive() && fine.GreaterThan(p.Cap) {
		return p.Cap
	}
	return fine
}

// AsOf returns the fine a loan would owe if it were returned at now.
func (p Policy) AsOf(dueAt, now time.Time) decimal.Decimal {
	return p.Compute(dueAt, &now)
}

// DaysLate counts started days between dueAt and at; partial days round up.
func DaysLate(dueAt, at time.Time) int64 {
	late := at.Sub(dueAt)
	if late <= 0 {
		return 0
	}
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}
