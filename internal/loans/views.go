package loans

import (
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/fines"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/shopspring/decimal"
)

const (
	StatusOpen     = "open"
	StatusOverdue  = "overdue"
	StatusReturned = "returned"
)

// LoanView is a loan with its fine derived from the policy rather than read
// from storage. Open loans show the fine accrued as of the view time.
type LoanView struct {
	LoanID      string          `json:"loan_id"`
	PatronID    string          `json:"patron_id"`
	PatronName  string          `json:"patron_name,omitempty"`
	ItemID      string          `json:"item_id"`
	ItemTitle   string          `json:"item_title,omitempty"`
	IssuedAt    time.Time       `json:"issued_at"`
	DueAt       time.Time       `json:"due_at"`
	ReturnedAt  *time.Time      `json:"returned_at,omitempty"`
	Fine        decimal.Decimal `json:"fine"`
	Status      string          `json:"status"`
	DaysOverdue int64           `json:"days_overdue"`
}

// OverdueLoan is an open loan past due, with flags for references the scanner
// cannot resolve.
type OverdueLoan struct {
	LoanView
	ItemResolved   bool `json:"item_resolved"`
	PatronResolved bool `json:"patron_resolved"`
}

func newLoanView(loan models.Loan, policy fines.Policy, now time.Time) LoanView {
	view := LoanView{
		LoanID:     loan.LoanID,
		PatronID:   loan.PatronID,
		ItemID:     loan.ItemID,
		IssuedAt:   loan.IssuedAt.UTC(),
		DueAt:      loan.DueAt.UTC(),
		ReturnedAt: utcPtr(loan.ReturnedAt),
	}
	view.applyFine(policy, now)
	return view
}

func newLoanViewFromRow(row loanRow, policy fines.Policy, now time.Time) LoanView {
	view := LoanView{
		LoanID:     row.LoanID,
		PatronID:   row.PatronID,
		PatronName: deref(row.PatronName),
		ItemID:     row.ItemID,
		ItemTitle:  deref(row.ItemTitle),
		IssuedAt:   row.IssuedAt.UTC(),
		DueAt:      row.DueAt.UTC(),
		ReturnedAt: utcPtr(row.ReturnedAt),
	}
	view.applyFine(policy, now)
	return view
}

func (v *LoanView) applyFine(policy fines.Policy, now time.Time) {
	if v.ReturnedAt != nil {
		v.Fine = policy.Compute(v.DueAt, v.ReturnedAt)
		v.DaysOverdue = fines.DaysLate(v.DueAt, *v.ReturnedAt)
		v.Status = StatusReturned
		return
	}
	v.Fine = policy.AsOf(v.DueAt, now)
	v.DaysOverdue = fines.DaysLate(v.DueAt, now)
	if now.After(v.DueAt) {
		v.Status = StatusOverdue
		return
	}
	v.Status = StatusOpen
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
