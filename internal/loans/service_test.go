package loans

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/catalog"
	"github.com/Lavavarshney/Library-Management-System/internal/fines"
	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/dbtest"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	db      *gorm.DB
	svc     Service
	catalog *flakyCatalog
	clock   *clock.Manual
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	require.NoError(t, err)

	flaky := &flakyCatalog{Catalog: catalogSvc}
	clk := clock.NewManual(baseTime)
	svc, err := NewService(ServiceParams{
		Repo:           NewRepository(conn),
		Catalog:        flaky,
		Locker:         NewLocalLocker(2 * time.Second),
		Policy:         fines.DefaultPolicy(),
		Clock:          clk,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		ItemRetries:    2,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)

	return &ledgerFixture{db: conn, svc: svc, catalog: flaky, clock: clk}
}

func (f *ledgerFixture) addItem(t *testing.T, itemID, title string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Item{ItemID: itemID, Title: title, Available: true}).Error)
}

func (f *ledgerFixture) addPatron(t *testing.T, patronID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Patron{PatronID: patronID, Name: "Patron " + patronID}).Error)
}

func (f *ledgerFixture) itemAvailable(t *testing.T, itemID string) bool {
	t.Helper()
	var item models.Item
	require.NoError(t, f.db.Where("item_id = ?", itemID).Take(&item).Error)
	return item.Available
}

func (f *ledgerFixture) openLoans(t *testing.T, itemID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Loan{}).
		Where("item_id = ? AND returned_at IS NULL", itemID).
		Count(&count).Error)
	return count
}

// assertAvailabilityInvariant checks available == (no open loan) for each item.
func (f *ledgerFixture) assertAvailabilityInvariant(t *testing.T, itemIDs ...string) {
	t.Helper()
	for _, id := range itemIDs {
		open := f.openLoans(t, id)
		assert.LessOrEqual(t, open, int64(1), "item %s has more than one open loan", id)
		assert.Equal(t, open == 0, f.itemAvailable(t, id), "availability mismatch for %s", id)
	}
}

// flakyCatalog fails SetItemAvailable a configurable number of times.
type flakyCatalog struct {
	Catalog
	failSets atomic.Int32
	setCalls atomic.Int32
}

func (c *flakyCatalog) SetItemAvailable(ctx context.Context, itemID string, available bool) error {
	c.setCalls.Add(1)
	if c.failSets.Load() > 0 {
		c.failSets.Add(-1)
		return errors.New("catalog write timeout")
	}
	return c.Catalog.SetItemAvailable(ctx, itemID, available)
}

func TestIssueReturnEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")
	f.addPatron(t, "P1")

	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, loan.LoanID)
	assert.True(t, loan.Fine.IsZero())
	assert.Equal(t, StatusOpen, loan.Status)
	assert.False(t, f.itemAvailable(t, "I1"))

	_, err = f.svc.Issue(ctx, IssueInput{PatronID: "P2", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeItemUnavailable))

	returned, err := f.svc.Return(ctx, loan.LoanID, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedAt)
	assert.True(t, returned.Fine.IsZero())
	assert.Equal(t, StatusReturned, returned.Status)
	assert.True(t, f.itemAvailable(t, "I1"))
	f.assertAvailabilityInvariant(t, "I1")
}

func TestIssueDefaultsTimes(t *testing.T) {
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	loan, err := f.svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "I1"})
	require.NoError(t, err)
	assert.True(t, loan.IssuedAt.Equal(baseTime))
	assert.True(t, loan.DueAt.Equal(baseTime.Add(defaultLoanPeriod)))
}

func TestIssueRejectsInvalidRange(t *testing.T) {
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	_, err := f.svc.Issue(context.Background(), IssueInput{
		PatronID: "P1",
		ItemID:   "I1",
		IssuedAt: baseTime,
		DueAt:    baseTime.Add(-time.Second),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidRange))
	assert.True(t, f.itemAvailable(t, "I1"))
	assert.Zero(t, f.openLoans(t, "I1"))
}

func TestIssueAllowsDueEqualToIssued(t *testing.T) {
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	_, err := f.svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "I1", IssuedAt: baseTime, DueAt: baseTime})
	require.NoError(t, err)
}

func TestIssueMissingItemIsUnavailable(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "ghost", DueAt: baseTime.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeItemUnavailable))
}

func TestIssueRequiresIdentifiers(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.Issue(context.Background(), IssueInput{ItemID: "I1"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestConcurrentIssueOnSameItemHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	const attempts = 8
	var (
		wg          sync.WaitGroup
		successes   atomic.Int32
		unavailable atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
			switch {
			case err == nil:
				successes.Add(1)
			case pkgerrors.HasCode(err, pkgerrors.CodeItemUnavailable):
				unavailable.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), unavailable.Load())
	f.assertAvailabilityInvariant(t, "I1")
}

func TestInterleavedIssueAndReturnKeepInvariant(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	items := []string{"I1", "I2", "I3"}
	for _, id := range items {
		f.addItem(t, id, "Title "+id)
	}

	var wg sync.WaitGroup
	for _, id := range items {
		for w := 0; w < 3; w++ {
			wg.Add(1)
			go func(itemID string) {
				defer wg.Done()
				for round := 0; round < 5; round++ {
					loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: itemID, DueAt: baseTime.Add(time.Hour)})
					if err != nil {
						if !pkgerrors.HasCode(err, pkgerrors.CodeItemUnavailable) {
							t.Errorf("issue %s: %v", itemID, err)
						}
						continue
					}
					if _, err := f.svc.Return(ctx, loan.LoanID, baseTime.Add(time.Minute)); err != nil {
						t.Errorf("return %s: %v", itemID, err)
					}
				}
			}(id)
		}
	}
	wg.Wait()

	f.assertAvailabilityInvariant(t, items...)
}

func TestReturnTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(24 * time.Hour)})
	require.NoError(t, err)

	firstReturn := baseTime.Add(60 * time.Hour)
	first, err := f.svc.Return(ctx, loan.LoanID, firstReturn)
	require.NoError(t, err)
	assert.True(t, first.Fine.Equal(decimal.NewFromInt(2)))

	var before models.Loan
	require.NoError(t, f.db.Where("loan_id = ?", loan.LoanID).Take(&before).Error)

	_, err = f.svc.Return(ctx, loan.LoanID, firstReturn.Add(48*time.Hour))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyReturned))

	var after models.Loan
	require.NoError(t, f.db.Where("loan_id = ?", loan.LoanID).Take(&after).Error)
	require.NotNil(t, after.ReturnedAt)
	assert.True(t, before.ReturnedAt.Equal(*after.ReturnedAt))
	assert.True(t, before.Fine.Equal(after.Fine))
	assert.True(t, f.itemAvailable(t, "I1"))
}

func TestReturnUnknownLoan(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.Return(context.Background(), "missing", baseTime)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestReturnBeforeIssueIsInvalidRange(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, loan.LoanID, baseTime.Add(-time.Hour))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidRange))
	assert.Equal(t, int64(1), f.openLoans(t, "I1"))
}

func TestLateReturnPersistsFine(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	due := baseTime.Add(24 * time.Hour)
	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: due})
	require.NoError(t, err)

	returned, err := f.svc.Return(ctx, loan.LoanID, due.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, returned.Fine.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(1), returned.DaysOverdue)

	var stored models.Loan
	require.NoError(t, f.db.Where("loan_id = ?", loan.LoanID).Take(&stored).Error)
	assert.True(t, stored.Fine.Equal(decimal.NewFromInt(1)))
}

func TestOpenLoanShowsAccruedFine(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)

	f.clock.Advance(37 * time.Hour)
	view, err := f.svc.Get(ctx, loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, view.Status)
	assert.True(t, view.Fine.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "Dune", view.ItemTitle)

	var stored models.Loan
	require.NoError(t, f.db.Where("loan_id = ?", loan.LoanID).Take(&stored).Error)
	assert.True(t, stored.Fine.IsZero(), "open loans keep a zero stored fine")
}

func TestListOverdueEnrichesAndFlagsMissingReferences(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")
	f.addItem(t, "I2", "Emma")
	f.addPatron(t, "P1")

	overdue, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I2", DueAt: baseTime.Add(10 * 24 * time.Hour)})
	require.NoError(t, err)
	orphan := models.Loan{
		LoanID:   "orphan",
		PatronID: "ghost-patron",
		ItemID:   "ghost-item",
		IssuedAt: baseTime.Add(-48 * time.Hour),
		DueAt:    baseTime.Add(-24 * time.Hour),
	}
	require.NoError(t, f.db.Create(&orphan).Error)

	rows, err := f.svc.ListOverdue(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "orphan", rows[0].LoanID)
	assert.False(t, rows[0].ItemResolved)
	assert.False(t, rows[0].PatronResolved)

	assert.Equal(t, overdue.LoanID, rows[1].LoanID)
	assert.True(t, rows[1].ItemResolved)
	assert.True(t, rows[1].PatronResolved)
	assert.Equal(t, "Dune", rows[1].ItemTitle)
	assert.Equal(t, "P1", rows[1].PatronID)
}

func TestListOverdueExcludesDueExactlyAtAsOf(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	due := baseTime.Add(time.Hour)
	_, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: due})
	require.NoError(t, err)

	rows, err := f.svc.ListOverdue(ctx, due)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListAndListOpen(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")
	f.addItem(t, "I2", "Emma")

	first, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I2", DueAt: baseTime.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, first.LoanID, baseTime.Add(time.Minute))
	require.NoError(t, err)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.svc.ListOpenLoans(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "I2", open[0].ItemID)
}

func TestIssueRetriesTransientItemFailure(t *testing.T) {
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")
	f.catalog.failSets.Store(2)

	_, err := f.svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.catalog.setCalls.Load())
	f.assertAvailabilityInvariant(t, "I1")
}

func TestIssueSurfacesConsistencyViolationAndRestores(t *testing.T) {
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")
	f.catalog.failSets.Store(100)

	_, err := f.svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConsistencyViolation))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, details["restored"])

	// initial attempt plus two retries
	assert.Equal(t, int32(3), f.catalog.setCalls.Load())
	f.assertAvailabilityInvariant(t, "I1")
}

func TestReturnSurfacesConsistencyViolationAndReopens(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.addItem(t, "I1", "Dune")

	loan, err := f.svc.Issue(ctx, IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)

	f.catalog.failSets.Store(100)
	_, err = f.svc.Return(ctx, loan.LoanID, baseTime.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConsistencyViolation))

	var stored models.Loan
	require.NoError(t, f.db.Where("loan_id = ?", loan.LoanID).Take(&stored).Error)
	assert.Nil(t, stored.ReturnedAt, "loan is reopened after failed item update")
	f.assertAvailabilityInvariant(t, "I1")

	f.catalog.failSets.Store(0)
	_, err = f.svc.Return(ctx, loan.LoanID, baseTime.Add(2*time.Minute))
	require.NoError(t, err)
	f.assertAvailabilityInvariant(t, "I1")
}

func TestIssueLockTimeoutIsConflict(t *testing.T) {
	conn := dbtest.Open(t)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.Item{ItemID: "I1", Title: "Dune", Available: true}).Error)

	locker := NewLocalLocker(20 * time.Millisecond)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Catalog: catalogSvc,
		Locker:  locker,
		Policy:  fines.DefaultPolicy(),
		Clock:   clock.NewFixed(baseTime),
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), "I1")
	require.NoError(t, err)
	defer unlock()

	_, err = svc.Issue(context.Background(), IssueInput{PatronID: "P1", ItemID: "I1", DueAt: baseTime.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, IsLockTimeout(err))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}
