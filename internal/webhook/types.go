package webhook

import (
	"time"
)

type EventType string

const (
	EventBatchCompleted         EventType = "batch.completed"
	EventMessageSent            EventType = "message.sent"
	EventMessageDelivered       EventType = "message.delivered"
	EventMessageAck             EventType = "message.ack"
	EventConnectionConnected    EventType = "connection.connected"
	EventConnectionDisconnected EventType = "connection.disconnected"
	EventConnectionLoggedOut    EventType = "connection.logged_out"
	EventQRUpdated              EventType = "qr.updated"
	EventTestPing               EventType = "test.ping"
)

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryDropped DeliveryStatus = "dropped"
)

// Target is one receiver of outbound events. Empty Events means all events.
type Target struct {
	URL    string
	Events []EventType
}

type WebhookEvent struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// DeliveryLog is the outcome of one event delivery to one target.
type DeliveryLog struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	URL       string         `json:"url"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}
