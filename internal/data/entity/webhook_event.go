package entity

import (
	"time"
)

type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookFailed    WebhookEventStatus = "failed"
)

type WebhookEvent struct {
	BaseSimple
	EventID     string             `db:"event_id"`
	EventType   string             `db:"event_type"`
	Payload     []byte             `db:"payload"`
	Status      WebhookEventStatus `db:"status"`
	Attempts    int                `db:"attempts"`
	LastError   *string            `db:"last_error"`
	ProcessedAt *time.Time         `db:"processed_at"`
}
