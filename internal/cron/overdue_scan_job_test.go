package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/catalog"
	"github.com/Lavavarshney/Library-Management-System/internal/fines"
	"github.com/Lavavarshney/Library-Management-System/internal/loans"
	"github.com/Lavavarshney/Library-Management-System/internal/notifications"
	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/dbtest"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type stubLister struct {
	rows  []loans.OverdueLoan
	err   error
	asOfs []time.Time
}

func (s *stubLister) ListOverdue(_ context.Context, asOf time.Time) ([]loans.OverdueLoan, error) {
	s.asOfs = append(s.asOfs, asOf)
	return s.rows, s.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	notices []notifications.Notice
	panicOn string
}

func (p *recordingPublisher) Publish(_ context.Context, patronID string, notice notifications.Notice) {
	if notice.LoanID == p.panicOn {
		panic("publisher exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notice)
}

func overdueRow(loanID, patronID string, itemOK, patronOK bool) loans.OverdueLoan {
	return loans.OverdueLoan{
		LoanView: loans.LoanView{
			LoanID:      loanID,
			PatronID:    patronID,
			ItemID:      "item-" + loanID,
			ItemTitle:   "Title " + loanID,
			DueAt:       scanTime.Add(-48 * time.Hour),
			Fine:        decimal.NewFromInt(2),
			DaysOverdue: 2,
		},
		ItemResolved:   itemOK,
		PatronResolved: patronOK,
	}
}

func newTestScanJob(t *testing.T, lister overdueLister, publisher noticePublisher) *OverdueScanJob {
	t.Helper()
	job, err := NewOverdueScanJob(OverdueScanJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "scan-test", Output: io.Discard}),
		Loans:     lister,
		Publisher: publisher,
		Clock:     clock.NewFixed(scanTime),
	})
	require.NoError(t, err)
	return job
}

func TestOverdueScanJobPublishesResolvedLoans(t *testing.T) {
	lister := &stubLister{rows: []loans.OverdueLoan{
		overdueRow("L1", "P1", true, true),
		overdueRow("L2", "P2", false, true),
		overdueRow("L3", "P3", true, false),
		overdueRow("L4", "P1", true, true),
	}}
	publisher := &recordingPublisher{}
	job := newTestScanJob(t, lister, publisher)

	require.Equal(t, "overdue-scan", job.Name())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, lister.asOfs, 1)
	assert.True(t, lister.asOfs[0].Equal(scanTime))
	require.Len(t, publisher.notices, 2)
	assert.Equal(t, "L1", publisher.notices[0].LoanID)
	assert.Equal(t, "Title L1", publisher.notices[0].ItemTitle)
	assert.Equal(t, "L4", publisher.notices[1].LoanID)
}

func TestOverdueScanJobIsLevelTriggered(t *testing.T) {
	lister := &stubLister{rows: []loans.OverdueLoan{overdueRow("L1", "P1", true, true)}}
	publisher := &recordingPublisher{}
	job := newTestScanJob(t, lister, publisher)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, publisher.notices, 2)
}

func TestOverdueScanJobRecoversPerLoanPanic(t *testing.T) {
	lister := &stubLister{rows: []loans.OverdueLoan{
		overdueRow("L1", "P1", true, true),
		overdueRow("L2", "P2", true, true),
	}}
	publisher := &recordingPublisher{panicOn: "L1"}
	job := newTestScanJob(t, lister, publisher)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, publisher.notices, 1)
	assert.Equal(t, "L2", publisher.notices[0].LoanID)
}

func TestOverdueScanJobFailsOnQueryError(t *testing.T) {
	lister := &stubLister{err: errors.New("db unavailable")}
	job := newTestScanJob(t, lister, &recordingPublisher{})
	assert.ErrorContains(t, job.Run(context.Background()), "db unavailable")
}

func TestOverdueScanNotifiesSubscribedPatron(t *testing.T) {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "scan-test", Output: io.Discard})
	conn := dbtest.Open(t)
	require.NoError(t, conn.Create(&models.Item{ItemID: "I1", Title: "Dune", Available: true}).Error)
	require.NoError(t, conn.Create(&models.Patron{PatronID: "P1", Name: "Ada"}).Error)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn))
	require.NoError(t, err)
	clk := clock.NewManual(scanTime)
	ledger, err := loans.NewService(loans.ServiceParams{
		Repo:    loans.NewRepository(conn),
		Catalog: catalogSvc,
		Policy:  fines.DefaultPolicy(),
		Clock:   clk,
		Logger:  logg,
	})
	require.NoError(t, err)

	hub := notifications.NewHub(notifications.HubOptions{Logger: logg})
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{Hub: hub, Logger: logg})
	require.NoError(t, err)
	sub, err := dispatcher.Subscribe("P1")
	require.NoError(t, err)
	defer dispatcher.Unsubscribe(sub)

	loan, err := ledger.Issue(ctx, loans.IssueInput{PatronID: "P1", ItemID: "I1", DueAt: scanTime.Add(time.Hour)})
	require.NoError(t, err)

	job, err := NewOverdueScanJob(OverdueScanJobParams{Logger: logg, Loans: ledger, Publisher: dispatcher, Clock: clk})
	require.NoError(t, err)

	require.NoError(t, job.Run(ctx))
	select {
	case notice := <-sub.C():
		t.Fatalf("loan not yet overdue, got notice %s", notice.LoanID)
	default:
	}

	clk.Advance(26 * time.Hour)
	require.NoError(t, job.Run(ctx))
	select {
	case notice := <-sub.C():
		assert.Equal(t, loan.LoanID, notice.LoanID)
		assert.Equal(t, "Dune", notice.ItemTitle)
		assert.True(t, notice.DueAt.Equal(scanTime.Add(time.Hour)))
		assert.True(t, notice.Fine.Equal(decimal.NewFromInt(2)))
	case <-time.After(time.Second):
		t.Fatal("expected overdue notice")
	}
}
