package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
)

// DispatcherParams configure a Dispatcher. A nil Transport delivers into Hub
// directly.
type DispatcherParams struct {
	Hub            *Hub
	Transport      Transport
	PublishTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.DispatcherMetrics
}

// Dispatcher is the entry point for subscribing to and publishing overdue
// notices. Delivery is best effort.
type Dispatcher struct {
	hub       *Hub
	transport Transport
	timeout   time.Duration
	logg      *logger.Logger
	metrics   *metrics.DispatcherMetrics
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Hub == nil {
		return nil, errors.New("notification hub required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	transport := params.Transport
	if transport == nil {
		mem, err := NewMemoryTransport(params.Hub)
		if err != nil {
			return nil, err
		}
		transport = mem
	}
	timeout := params.PublishTimeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	return &Dispatcher{
		hub:       params.Hub,
		transport: transport,
		timeout:   timeout,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

func (d *Dispatcher) Subscribe(patronID string) (*Subscription, error) {
	return d.hub.Subscribe(patronID)
}

func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	d.hub.Unsubscribe(sub)
}

// Publish hands the notice to the transport. Failures are logged and counted,
// never returned.
func (d *Dispatcher) Publish(ctx context.Context, patronID string, notice Notice) {
	patronID = strings.TrimSpace(patronID)
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"patron_id": patronID,
		"loan_id":   notice.LoanID,
		"transport": d.transport.Name(),
	})
	if patronID == "" {
		d.metrics.IncDropped("invalid")
		d.logg.Warn(logCtx, "notification without patron dropped")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.transport.Publish(pubCtx, patronID, notice); err != nil {
		d.metrics.IncDropped("transport")
		d.logg.Error(logCtx, "notification publish failed", err)
		return
	}
	d.metrics.IncPublished(d.transport.Name())
	d.logg.Debug(logCtx, "notification published")
}

// Hub exposes the local hub for bridges.
func (d *Dispatcher) Hub() *Hub {
	return d.hub
}
