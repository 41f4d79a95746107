package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lavavarshney/Library-Management-System/internal/loans"
	"github.com/Lavavarshney/Library-Management-System/internal/notifications"
	"github.com/Lavavarshney/Library-Management-System/pkg/clock"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
)

const overdueScanJobName = "overdue-scan"

type overdueLister interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]loans.OverdueLoan, error)
}

type noticePublisher interface {
	Publish(ctx context.Context, patronID string, notice notifications.Notice)
}

// OverdueScanJobParams configure the overdue scan.
type OverdueScanJobParams struct {
	Logger    *logger.Logger
	Loans     overdueLister
	Publisher noticePublisher
	Clock     clock.Clock
	Metrics   *metrics.ScannerMetrics
}

// OverdueScanJob notifies patrons about every open loan past its due time.
// It is level triggered: a loan that stays overdue is notified every cycle.
type OverdueScanJob struct {
	logg      *logger.Logger
	loans     overdueLister
	publisher noticePublisher
	clock     clock.Clock
	metrics   *metrics.ScannerMetrics
}

type scanOutcome int

const (
	outcomeNotified scanOutcome = iota
	outcomeSkipped
)

// NewOverdueScanJob builds the overdue scan job.
func NewOverdueScanJob(params OverdueScanJobParams) (*OverdueScanJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Loans == nil {
		return nil, errors.New("loan service required")
	}
	if params.Publisher == nil {
		return nil, errors.New("notification publisher required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &OverdueScanJob{
		logg:      params.Logger,
		loans:     params.Loans,
		publisher: params.Publisher,
		clock:     clk,
		metrics:   params.Metrics,
	}, nil
}

func (j *OverdueScanJob) Name() string {
	return overdueScanJobName
}

func (j *OverdueScanJob) Run(ctx context.Context) error {
	asOf := j.clock.Now()
	overdue, err := j.loans.ListOverdue(ctx, asOf)
	if err != nil {
		return fmt.Errorf("list overdue loans: %w", err)
	}
	j.metrics.AddScanned(len(overdue))

	notified, skipped := 0, 0
	for _, loan := range overdue {
		if ctx.Err() != nil {
			break
		}
		switch j.notify(ctx, loan) {
		case outcomeNotified:
			notified++
		default:
			skipped++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"as_of":    asOf,
		"scanned":  len(overdue),
		"notified": notified,
		"skipped":  skipped,
	}), "overdue scan complete")
	return ctx.Err()
}

func (j *OverdueScanJob) notify(ctx context.Context, loan loans.OverdueLoan) (outcome scanOutcome) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"loan_id":   loan.LoanID,
		"item_id":   loan.ItemID,
		"patron_id": loan.PatronID,
	})
	defer func() {
		if r := recover(); r != nil {
			j.logg.Error(logCtx, "overdue notice failed", fmt.Errorf("panic: %v", r))
			j.metrics.IncSkipped("panic")
			outcome = outcomeSkipped
		}
	}()

	if !loan.ItemResolved {
		j.logg.Warn(logCtx, "overdue loan references a missing item; skipping")
		j.metrics.IncSkipped("missing_item")
		return outcomeSkipped
	}
	if !loan.PatronResolved {
		j.logg.Warn(logCtx, "overdue loan references a missing patron; skipping")
		j.metrics.IncSkipped("missing_patron")
		return outcomeSkipped
	}

	j.publisher.Publish(ctx, loan.PatronID, notifications.Notice{
		LoanID:      loan.LoanID,
		ItemTitle:   loan.ItemTitle,
		DueAt:       loan.DueAt,
		PatronID:    loan.PatronID,
		Fine:        loan.Fine,
		DaysOverdue: loan.DaysOverdue,
	})
	j.metrics.IncNotified()
	return outcomeNotified
}
