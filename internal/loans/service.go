package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/fines"
	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

const (
	defaultItemRetries    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultLoanPeriod     = 14 * 24 * time.Hour
	compensationBudget    = 5 * time.Second
)

// Catalog is the item store the ledger keeps in step with open loans.
type Catalog interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	SetItemAvailable(ctx context.Context, itemID string, available bool) error
}

// Service exposes the loan lifecycle operations.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*LoanView, error)
	Return(ctx context.Context, loanID string, returnedAt time.Time) (*LoanView, error)
	Get(ctx context.Context, loanID string) (*LoanView, error)
	List(ctx context.Context) ([]LoanView, error)
	ListOpenLoans(ctx context.Context) ([]LoanView, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]OverdueLoan, error)
}

// IssueInput describes a new loan. A zero IssuedAt means now; a zero DueAt
// means the configured loan period after IssuedAt.
type IssueInput struct {
	PatronID string
	ItemID   string
	IssuedAt time.Time
	DueAt    time.Time
}

// ServiceParams configure the loan service.
type ServiceParams struct {
	Repo           Repository
	Catalog        Catalog
	Locker         ItemLocker
	Policy         fines.Policy
	Clock          clock.Clock
	Logger         *logger.Logger
	Metrics        *metrics.LedgerMetrics
	ItemRetries    uint64
	RetryBaseDelay time.Duration
	LoanPeriod     time.Duration
}

type service struct {
	repo        Repository
	catalog     Catalog
	locker      ItemLocker
	policy      fines.Policy
	clock       clock.Clock
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	itemRetries uint64
	retryBase   time.Duration
	loanPeriod  time.Duration
}

// NewService wires loan ledger dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "loan repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	retries := params.ItemRetries
	if retries == 0 {
		retries = defaultItemRetries
	}
	base := params.RetryBaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	period := params.LoanPeriod
	if period <= 0 {
		period = defaultLoanPeriod
	}
	return &service{
		repo:        params.Repo,
		catalog:     params.Catalog,
		locker:      locker,
		policy:      params.Policy,
		clock:       clk,
		logg:        params.Logger,
		metrics:     params.Metrics,
		itemRetries: retries,
		retryBase:   base,
		loanPeriod:  period,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*LoanView, error) {
	view, err := s.issue(ctx, input)
	if err != nil {
		s.recordFailure("issue", err)
		return nil, err
	}
	s.metrics.IncIssued()
	return view, nil
}

func (s *service) issue(ctx context.Context, input IssueInput) (*LoanView, error) {
	patronID := strings.TrimSpace(input.PatronID)
	itemID := strings.TrimSpace(input.ItemID)
	if patronID == "" || itemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron_id and item_id are required")
	}

	issuedAt := input.IssuedAt.UTC()
	if input.IssuedAt.IsZero() {
		issuedAt = s.clock.Now()
	}
	dueAt := input.DueAt.UTC()
	if input.DueAt.IsZero() {
		dueAt = issuedAt.Add(s.loanPeriod)
	}
	if dueAt.Before(issuedAt) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRange, "due_at must not be before issued_at").
			WithDetails(map[string]any{"issued_at": issuedAt, "due_at": dueAt})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"item_id": itemID, "patron_id": patronID})

	unlock, err := s.locker.Lock(ctx, itemID)
	if err != nil {
		if IsLockTimeout(err) {
			s.metrics.IncLockTimeout()
		}
		return nil, err
	}
	defer unlock()

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, itemUnavailable(itemID, "item does not exist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if !item.Available {
		return nil, itemUnavailable(itemID, "item is already on loan")
	}

	loan := &models.Loan{
		LoanID:   uuid.NewString(),
		PatronID: patronID,
		ItemID:   itemID,
		IssuedAt: issuedAt,
		DueAt:    dueAt,
	}
	if err := s.repo.Create(ctx, loan); err != nil {
		if db.IsUniqueViolation(err, openLoanIndex) {
			return nil, itemUnavailable(itemID, "item already has an open loan")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
	}
	ctx = s.logg.WithLoanID(ctx, loan.LoanID)

	if err := s.withItemRetry(ctx, func(ctx context.Context) error {
		return s.catalog.SetItemAvailable(ctx, itemID, false)
	}); err != nil {
		restoreErr := s.compensate(ctx, func(ctx context.Context) error {
			return s.repo.Delete(ctx, loan.LoanID)
		})
		return nil, s.consistencyViolation(ctx, "issue", loan, err, restoreErr)
	}

	s.logg.Info(ctx, "loan issued")
	view := newLoanView(*loan, s.policy, s.clock.Now())
	return &view, nil
}

func (s *service) Return(ctx context.Context, loanID string, returnedAt time.Time) (*LoanView, error) {
	view, err := s.returnLoan(ctx, loanID, returnedAt)
	if err != nil {
		s.recordFailure("return", err)
		return nil, err
	}
	s.metrics.IncReturned(view.Fine)
	return view, nil
}

func (s *service) returnLoan(ctx context.Context, loanID string, returnedAt time.Time) (*LoanView, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	if returnedAt.IsZero() {
		returnedAt = s.clock.Now()
	}
	returnedAt = returnedAt.UTC()

	loan, err := s.findLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"loan_id": loanID, "item_id": loan.ItemID})

	unlock, err := s.locker.Lock(ctx, loan.ItemID)
	if err != nil {
		if IsLockTimeout(err) {
			s.metrics.IncLockTimeout()
		}
		return nil, err
	}
	defer unlock()

	// Reload under the item lock; a concurrent return may have closed it.
	loan, err = s.findLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		return nil, alreadyReturned(loanID)
	}
	if returnedAt.Before(loan.IssuedAt) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRange, "returned_at must not be before issued_at").
			WithDetails(map[string]any{"issued_at": loan.IssuedAt.UTC(), "returned_at": returnedAt})
	}

	fine := s.policy.Compute(loan.DueAt, &returnedAt)
	closed, err := s.repo.Close(ctx, loanID, returnedAt, fine)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close loan")
	}
	if !closed {
		return nil, alreadyReturned(loanID)
	}
	loan.ReturnedAt = &returnedAt
	loan.Fine = fine

	err = s.withItemRetry(ctx, func(ctx context.Context) error {
		return s.catalog.SetItemAvailable(ctx, loan.ItemID, true)
	})
	switch {
	case err == nil:
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(ctx, "returned loan references a missing item; nothing to reopen")
	default:
		restoreErr := s.compensate(ctx, func(ctx context.Context) error {
			return s.repo.Reopen(ctx, loanID)
		})
		return nil, s.consistencyViolation(ctx, "return", loan, err, restoreErr)
	}

	s.logg.Info(ctx, "loan returned")
	view := newLoanView(*loan, s.policy, s.clock.Now())
	return &view, nil
}

func (s *service) Get(ctx context.Context, loanID string) (*LoanView, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	rows, err := s.repo.List(ctx, listFilter{LoanID: loanID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if len(rows) == 0 {
		return nil, loanNotFound(loanID)
	}
	view := newLoanViewFromRow(rows[0], s.policy, s.clock.Now())
	return &view, nil
}

func (s *service) List(ctx context.Context) ([]LoanView, error) {
	return s.listViews(ctx, listFilter{})
}

func (s *service) ListOpenLoans(ctx context.Context) ([]LoanView, error) {
	return s.listViews(ctx, listFilter{OpenOnly: true})
}

// ListOverdue takes no item locks; a loan being returned concurrently may
// still appear in this snapshot.
func (s *service) ListOverdue(ctx context.Context, asOf time.Time) ([]OverdueLoan, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	asOf = asOf.UTC()
	rows, err := s.repo.List(ctx, listFilter{OpenOnly: true, DueBefore: &asOf})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}
	out := make([]OverdueLoan, 0, len(rows))
	for _, row := range rows {
		out = append(out, OverdueLoan{
			LoanView:       newLoanViewFromRow(row, s.policy, asOf),
			ItemResolved:   row.JoinedItemID != nil,
			PatronResolved: row.JoinedPatronID != nil,
		})
	}
	return out, nil
}

func (s *service) listViews(ctx context.Context, filter listFilter) ([]LoanView, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	now := s.clock.Now()
	out := make([]LoanView, 0, len(rows))
	for _, row := range rows {
		out = append(out, newLoanViewFromRow(row, s.policy, now))
	}
	return out, nil
}

func (s *service) findLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	loan, err := s.repo.Find(ctx, loanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan == nil {
		return nil, loanNotFound(loanID)
	}
	return loan, nil
}

// withItemRetry runs fn with bounded exponential backoff. Not-found errors are
// permanent and returned immediately.
func (s *service) withItemRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.itemRetries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// compensate undoes the loan write after the item update failed. It runs on a
// detached context so a cancelled request still gets its rollback attempt.
func (s *service) compensate(ctx context.Context, undo func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationBudget)
	defer cancel()
	return s.withItemRetry(cctx, undo)
}

func (s *service) consistencyViolation(ctx context.Context, operation string, loan *models.Loan, cause, restoreErr error) error {
	restored := restoreErr == nil
	err := pkgerrors.Wrap(
		pkgerrors.CodeConsistencyViolation,
		multierr.Append(cause, restoreErr),
		fmt.Sprintf("%s: item availability could not be updated", operation),
	).WithDetails(map[string]any{
		"loan_id":  loan.LoanID,
		"item_id":  loan.ItemID,
		"restored": restored,
	})

	logCtx := s.logg.WithFields(ctx, map[string]any{"operation": operation, "restored": restored})
	s.logg.Error(logCtx, "loan and item state could not be reconciled", err)
	s.metrics.IncConsistencyViolation(operation)
	return err
}

func (s *service) recordFailure(operation string, err error) {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = "CANCELED"
	}
	s.metrics.IncFailure(operation, string(code))
}

func itemUnavailable(itemID, reason string) error {
	return pkgerrors.New(pkgerrors.CodeItemUnavailable, reason).
		WithDetails(map[string]any{"item_id": itemID})
}

func alreadyReturned(loanID string) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyReturned, "loan has already been returned").
		WithDetails(map[string]any{"loan_id": loanID})
}

func loanNotFound(loanID string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found").
		WithDetails(map[string]any{"loan_id": loanID})
}
