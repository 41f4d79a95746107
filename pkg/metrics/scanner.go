package metrics

import "github.com/prometheus/client_golang/prometheus"

// ScannerMetrics tracks overdue scan outcomes.
type ScannerMetrics struct {
	scanned  prometheus.Counter
	notified prometheus.Counter
	skipped  *prometheus.CounterVec
}

// NewScannerMetrics registers the overdue scanner metrics on the provided registerer.
func NewScannerMetrics(reg prometheus.Registerer) *ScannerMetrics {
	if reg == nil {
		return &ScannerMetrics{}
	}
	m := &ScannerMetrics{
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overdue_loans_scanned_total",
			Help: "Overdue loans returned by scan queries.",
		}),
		notified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overdue_notices_published_total",
			Help: "Overdue notices submitted to the dispatcher.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overdue_loans_skipped_total",
			Help: "Overdue loans skipped by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.scanned, m.notified, m.skipped)
	return m
}

func (m *ScannerMetrics) AddScanned(n int) {
	if m == nil || m.scanned == nil {
		return
	}
	m.scanned.Add(float64(n))
}

func (m *ScannerMetrics) IncNotified() {
	if m == nil || m.notified == nil {
		return
	}
	m.notified.Inc()
}

func (m *ScannerMetrics) IncSkipped(reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}
