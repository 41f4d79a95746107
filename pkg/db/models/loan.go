package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan records a single lending of an item to a patron. ReturnedAt is nil while
// the loan is open; at most one open loan may exist per item.
type Loan struct {
	LoanID     string          `gorm:"column:loan_id;type:text;primaryKey"`
	PatronID   string          `gorm:"column:patron_id;type:text;not null;index:idx_loans_patron"`
	ItemID     string          `gorm:"column:item_id;type:text;not null;index:idx_loans_open_item,unique,where:returned_at IS NULL"`
	IssuedAt   time.Time       `gorm:"column:issued_at;not null"`
	DueAt      time.Time       `gorm:"column:due_at;not null;index:idx_loans_due_at"`
	ReturnedAt *time.Time      `gorm:"column:returned_at"`
	Fine       decimal.Decimal `gorm:"column:fine;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Loan) TableName() string { return "loans" }

// IsOpen reports whether the loan has not been returned.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}
