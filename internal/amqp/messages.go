package amqp

import (
	"encoding/json"
	"time"
)

// TransactionEventMessage is one event from the external transaction feed.
// The feed redelivers on failure, so consumers dedupe by TransactionID.
type TransactionEventMessage struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	AmountCents   int64     `json:"amount_cents"`
	CategoryID    int64     `json:"category_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NotificationEventMessage mirrors a stored notification for external
// delivery channels (push, mail, whatever consumes the notify exchange).
type NotificationEventMessage struct {
	NotificationID int64          `json:"notification_id"`
	FamilyID       int64          `json:"family_id"`
	MemberID       int64          `json:"member_id,omitempty"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

func (m *NotificationEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationEventFromJSON(data []byte) (*NotificationEventMessage, error) {
	var msg NotificationEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
