package notifications

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// EventNotification is the event name carried by every overdue notice.
const EventNotification = "notification"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Notice is the payload delivered to a patron's subscribers.
type Notice struct {
	LoanID      string          `json:"loan_id"`
	ItemTitle   string          `json:"item_title"`
	DueAt       time.Time       `json:"due_at"`
	PatronID    string          `json:"patron_id,omitempty"`
	Fine        decimal.Decimal `json:"fine"`
	DaysOverdue int64           `json:"days_overdue"`
}

// Envelope is the cross-process wire form of a notice.
type Envelope struct {
	Event    string `json:"event"`
	PatronID string `json:"patron_id"`
	Payload  Notice `json:"payload"`
}

// EncodeEnvelope wraps a notice addressed to patronID.
func EncodeEnvelope(patronID string, notice Notice) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:    EventNotification,
		PatronID: patronID,
		Payload:  notice,
	})
}

// DecodeEnvelope parses and checks a wire envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode notification envelope: %w", err)
	}
	if env.Event != EventNotification {
		return Envelope{}, fmt.Errorf("unexpected event %q", env.Event)
	}
	if strings.TrimSpace(env.PatronID) == "" {
		return Envelope{}, fmt.Errorf("notification envelope missing patron_id")
	}
	return env, nil
}

// MarshalNotice renders a notice for stream clients.
func MarshalNotice(notice Notice) ([]byte, error) {
	return json.Marshal(notice)
}
