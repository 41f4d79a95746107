package notifications

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func sampleNotice(loanID string) Notice {
	return Notice{
		LoanID:      loanID,
		ItemTitle:   "Dune",
		DueAt:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PatronID:    "P1",
		Fine:        decimal.NewFromInt(3),
		DaysOverdue: 3,
	}
}

func receive(t *testing.T, sub *Subscription) Notice {
	t.Helper()
	select {
	case n := <-sub.C():
		return n
	case <-time.After(time.Second):
		t.Fatalf("subscription %s received nothing", sub.ID())
		return Notice{}
	}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case n := <-sub.C():
		t.Fatalf("unexpected notice %s on %s", n.LoanID, sub.ID())
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubDeliversToEveryHandleOfPatron(t *testing.T) {
	hub := NewHub(HubOptions{Logger: testLogger()})
	first, err := hub.Subscribe("P1")
	require.NoError(t, err)
	second, err := hub.Subscribe("P1")
	require.NoError(t, err)
	other, err := hub.Subscribe("P2")
	require.NoError(t, err)

	delivered := hub.Deliver(context.Background(), "P1", sampleNotice("L1"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, "L1", receive(t, first).LoanID)
	assert.Equal(t, "L1", receive(t, second).LoanID)
	assertNothing(t, other)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(HubOptions{Logger: testLogger()})
	first, err := hub.Subscribe("P1")
	require.NoError(t, err)
	second, err := hub.Subscribe("P1")
	require.NoError(t, err)

	hub.Unsubscribe(first)
	select {
	case <-first.Done():
	default:
		t.Fatal("expected done to be closed after unsubscribe")
	}

	assert.Equal(t, 1, hub.Deliver(context.Background(), "P1", sampleNotice("L2")))
	assert.Equal(t, "L2", receive(t, second).LoanID)
	assertNothing(t, first)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(HubOptions{Logger: testLogger()})
	sub, err := hub.Subscribe("P1")
	require.NoError(t, err)

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)
	assert.Zero(t, hub.Subscribers("P1"))
}

func TestHubDropsWhenNoSubscriber(t *testing.T) {
	hub := NewHub(HubOptions{Logger: testLogger()})
	assert.Zero(t, hub.Deliver(context.Background(), "nobody", sampleNotice("L3")))
}

func TestHubDropsStalledHandle(t *testing.T) {
	hub := NewHub(HubOptions{Buffer: 1, DeliverTimeout: 10 * time.Millisecond, Logger: testLogger()})
	stalled, err := hub.Subscribe("P1")
	require.NoError(t, err)
	healthy, err := hub.Subscribe("P1")
	require.NoError(t, err)

	// fill the stalled handle's buffer and drain the healthy one
	assert.Equal(t, 2, hub.Deliver(context.Background(), "P1", sampleNotice("L1")))
	receive(t, healthy)

	start := time.Now()
	assert.Equal(t, 1, hub.Deliver(context.Background(), "P1", sampleNotice("L2")))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-stalled.Done():
	case <-time.After(time.Second):
		t.Fatal("stalled handle was not dropped")
	}
	assert.Equal(t, 1, hub.Subscribers("P1"))
	assert.Equal(t, "L2", receive(t, healthy).LoanID)
}

func TestHubSubscribeRequiresPatron(t *testing.T) {
	hub := NewHub(HubOptions{})
	_, err := hub.Subscribe("  ")
	assert.Error(t, err)
}

func TestHubCloseReleasesEveryHandle(t *testing.T) {
	hub := NewHub(HubOptions{Logger: testLogger()})
	first, err := hub.Subscribe("P1")
	require.NoError(t, err)
	second, err := hub.Subscribe("P2")
	require.NoError(t, err)

	hub.Close()
	for _, sub := range []*Subscription{first, second} {
		select {
		case <-sub.Done():
		default:
			t.Fatalf("expected %s to be released on close", sub.ID())
		}
	}
	assert.Zero(t, hub.Subscribers("P1"))
	assert.Zero(t, hub.Subscribers("P2"))

	_, err = hub.Subscribe("P1")
	assert.Error(t, err)

	hub.Unsubscribe(first)
	hub.Close()
}
