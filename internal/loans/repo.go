package loans

import (
	"context"
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/repo"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const openLoanIndex = "idx_loans_open_item"

// Repository exposes persistence helpers for loans.
type Repository interface {
	Create(ctx context.Context, loan *models.Loan) error
	Delete(ctx context.Context, loanID string) error
	Find(ctx context.Context, loanID string) (*models.Loan, error)
	Close(ctx context.Context, loanID string, returnedAt time.Time, fine decimal.Decimal) (bool, error)
	Reopen(ctx context.Context, loanID string) error
	List(ctx context.Context, filter listFilter) ([]loanRow, error)
}

type listFilter struct {
	LoanID   string
	OpenOnly bool
	// DueBefore selects loans with due_at strictly before the instant.
	DueBefore *time.Time
}

// loanRow is a loan joined with the display fields of its item and patron.
// The joined ids are nil when the referenced record is missing.
type loanRow struct {
	LoanID         string
	PatronID       string
	ItemID         string
	IssuedAt       time.Time
	DueAt          time.Time
	ReturnedAt     *time.Time
	Fine           decimal.Decimal
	JoinedItemID   *string
	ItemTitle      *string
	JoinedPatronID *string
	PatronName     *string
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) Create(ctx context.Context, loan *models.Loan) error {
	return r.DB(ctx).Create(loan).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, loanID string) error {
	return r.DB(ctx).Where("loan_id = ?", loanID).Delete(&models.Loan{}).Error
}

func (r *repositoryImpl) Find(ctx context.Context, loanID string) (*models.Loan, error) {
	var loan models.Loan
	found, err := r.TakeBy(ctx, &loan, "loan_id", loanID)
	if err != nil || !found {
		return nil, err
	}
	return &loan, nil
}

// Close sets returned_at and fine on an open loan. It reports false when the
// loan was already closed by someone else.
func (r *repositoryImpl) Close(ctx context.Context, loanID string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	result := r.DB(ctx).
		Model(&models.Loan{}).
		Where("loan_id = ? AND returned_at IS NULL", loanID).
		Updates(map[string]any{
			"returned_at": returnedAt.UTC(),
			"fine":        fine,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) Reopen(ctx context.Context, loanID string) error {
	return r.DB(ctx).
		Model(&models.Loan{}).
		Where("loan_id = ?", loanID).
		Updates(map[string]any{
			"returned_at": nil,
			"fine":        decimal.Zero,
		}).Error
}

func (r *repositoryImpl) List(ctx context.Context, filter listFilter) ([]loanRow, error) {
	query := r.DB(ctx).
		Table("loans AS l").
		Select(`l.loan_id, l.patron_id, l.item_id, l.issued_at, l.due_at, l.returned_at, l.fine,
			i.item_id AS joined_item_id, i.title AS item_title,
			p.patron_id AS joined_patron_id, p.name AS patron_name`).
		Joins("LEFT JOIN items AS i ON i.item_id = l.item_id").
		Joins("LEFT JOIN patrons AS p ON p.patron_id = l.patron_id")

	if filter.LoanID != "" {
		query = query.Where("l.loan_id = ?", filter.LoanID)
	}
	if filter.OpenOnly {
		query = query.Where("l.returned_at IS NULL")
	}
	if filter.DueBefore != nil {
		query = query.Where("l.due_at < ?", filter.DueBefore.UTC())
	}

	var rows []loanRow
	if err := query.Order("l.due_at ASC, l.loan_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
