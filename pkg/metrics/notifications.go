package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatcherMetrics tracks notification fan-out.
type DispatcherMetrics struct {
	published   *prometheus.CounterVec
	delivered   prometheus.Counter
	dropped     *prometheus.CounterVec
	subscribers prometheus.Gauge
}

// NewDispatcherMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatcherMetrics(reg prometheus.Registerer) *DispatcherMetrics {
	if reg == nil {
		return &DispatcherMetrics{}
	}
	m := &DispatcherMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notices handed to the notification transport.",
		}, []string{"transport"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notices delivered to a live subscriber handle.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notices dropped by reason.",
		}, []string{"reason"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_subscribers",
			Help: "Live subscriber handles on this instance.",
		}),
	}
	reg.MustRegister(m.published, m.delivered, m.dropped, m.subscribers)
	return m
}

func (m *DispatcherMetrics) IncPublished(transport string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(transport)).Inc()
}

func (m *DispatcherMetrics) IncDelivered() {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.Inc()
}

func (m *DispatcherMetrics) IncDropped(reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *DispatcherMetrics) SetSubscribers(n int) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
