package notifications

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/metrics"
	"github.com/google/uuid"
)

const (
	defaultSubscriberBuffer = 16
	defaultDeliverTimeout   = 2 * time.Second
)

// Subscription is one live handle for a patron. Notices arrive on C until
// Done is closed.
type Subscription struct {
	id       string
	patronID string
	ch       chan Notice
	done     chan struct{}
	once     sync.Once
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) PatronID() string { return s.patronID }

// C is never closed; select on Done as well.
func (s *Subscription) C() <-chan Notice { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// HubOptions configure a Hub.
type HubOptions struct {
	Buffer         int
	DeliverTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.DispatcherMetrics
}

// Hub holds the subscriber handles connected to this process.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription
	total   int
	closed  bool
	buffer  int
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.DispatcherMetrics
}

func NewHub(opts HubOptions) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultSubscriberBuffer
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = defaultDeliverTimeout
	}
	return &Hub{
		subs:    map[string]map[string]*Subscription{},
		buffer:  opts.Buffer,
		timeout: opts.DeliverTimeout,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}
}

// Subscribe registers a new handle for patronID.
func (h *Hub) Subscribe(patronID string) (*Subscription, error) {
	patronID = strings.TrimSpace(patronID)
	if patronID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patron id required")
	}
	sub := &Subscription{
		id:       uuid.NewString(),
		patronID: patronID,
		ch:       make(chan Notice, h.buffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification hub is shutting down")
	}
	handles, ok := h.subs[patronID]
	if !ok {
		handles = map[string]*Subscription{}
		h.subs[patronID] = handles
	}
	handles[sub.id] = sub
	h.total++
	total := h.total
	h.mu.Unlock()

	h.metrics.SetSubscribers(total)
	return sub, nil
}

// Unsubscribe removes a handle. Calling it again, or with nil, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	removed := false
	if handles, ok := h.subs[sub.patronID]; ok {
		if _, ok := handles[sub.id]; ok {
			delete(handles, sub.id)
			h.total--
			removed = true
		}
		if len(handles) == 0 {
			delete(h.subs, sub.patronID)
		}
	}
	total := h.total
	h.mu.Unlock()

	sub.close()
	if removed {
		h.metrics.SetSubscribers(total)
	}
}

// Close releases every live handle and refuses new subscriptions. Streams
// waiting on a handle see Done and return.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var released []*Subscription
	for _, handles := range h.subs {
		for _, sub := range handles {
			released = append(released, sub)
		}
	}
	h.subs = map[string]map[string]*Subscription{}
	h.total = 0
	h.mu.Unlock()

	for _, sub := range released {
		sub.close()
	}
	h.metrics.SetSubscribers(0)
}

// Subscribers returns the number of live handles for patronID.
func (h *Hub) Subscribers(patronID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[patronID])
}

// Deliver fans notice out to every live handle of patronID and returns how
// many accepted it. A handle that does not accept within the deliver timeout
// is dropped. With no live handle the notice is discarded.
func (h *Hub) Deliver(ctx context.Context, patronID string, notice Notice) int {
	h.mu.RLock()
	handles := make([]*Subscription, 0, len(h.subs[patronID]))
	for _, sub := range h.subs[patronID] {
		handles = append(handles, sub)
	}
	h.mu.RUnlock()

	if len(handles) == 0 {
		h.metrics.IncDropped("no_subscriber")
		return 0
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	for _, sub := range handles {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			if h.deliverOne(ctx, sub, notice) {
				delivered.Add(1)
			}
		}(sub)
	}
	wg.Wait()
	return int(delivered.Load())
}

func (h *Hub) deliverOne(ctx context.Context, sub *Subscription, notice Notice) bool {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case <-sub.done:
		return false
	default:
	}

	select {
	case sub.ch <- notice:
		h.metrics.IncDelivered()
		return true
	case <-sub.done:
		return false
	case <-timer.C:
		h.Unsubscribe(sub)
		h.metrics.IncDropped("stalled")
		if h.logg != nil {
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"patron_id":       sub.patronID,
				"subscription_id": sub.id,
			}), "dropping stalled notification subscriber")
		}
		return false
	case <-ctx.Done():
		h.metrics.IncDropped("canceled")
		return false
	}
}
