package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LedgerMetrics tracks loan issue/return outcomes.
type LedgerMetrics struct {
	issued      prometheus.Counter
	returned    prometheus.Counter
	failures    *prometheus.CounterVec
	violations  *prometheus.CounterVec
	finesTotal  prometheus.Counter
	lockTimeout prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loans_issued_total",
			Help: "Loans successfully issued.",
		}),
		returned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loans_returned_total",
			Help: "Loans successfully returned.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_operation_failures_total",
			Help: "Failed ledger operations by operation and error code.",
		}, []string{"operation", "code"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_consistency_violations_total",
			Help: "Loan/item writes that could not be reconciled.",
		}, []string{"operation"}),
		finesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loan_fines_assessed_total",
			Help: "Sum of fines assessed at return, in currency units.",
		}),
		lockTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loan_item_lock_timeouts_total",
			Help: "Per-item lock acquisitions that timed out.",
		}),
	}
	reg.MustRegister(m.issued, m.returned, m.failures, m.violations, m.finesTotal, m.lockTimeout)
	return m
}

func (m *LedgerMetrics) IncIssued() {
	if m == nil || m.issued == nil {
		return
	}
	m.issued.Inc()
}

// IncReturned counts a return and adds its fine to the assessed total.
func (m *LedgerMetrics) IncReturned(fine decimal.Decimal) {
	if m == nil || m.returned == nil {
		return
	}
	m.returned.Inc()
	if fine.IsPositive() {
		m.finesTotal.Add(fine.InexactFloat64())
	}
}

func (m *LedgerMetrics) IncFailure(operation, code string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

func (m *LedgerMetrics) IncConsistencyViolation(operation string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) IncLockTimeout() {
	if m == nil || m.lockTimeout == nil {
		return
	}
	m.lockTimeout.Inc()
}
