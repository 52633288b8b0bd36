package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
	EventRefundCreated   = "refund.created"
	EventRefundProcessed = "refund.processed"
	EventRefundFailed    = "refund.failed"
)

// Notes is the provider's free-form key/value map. Empty notes arrive as [].
type Notes map[string]string

func (n *Notes) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*n = nil
		return nil
	}

	raw := map[string]any{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("decode notes: %w", err)
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	*n = out
	return nil
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Notes            Notes  `json:"notes"`
}

type OrderEntity struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
	Notes   Notes  `json:"notes"`
}

type WebhookEvent struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity Refund `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("webhook payload has no event type")
	}
	return &ev, nil
}

func (e *WebhookEvent) Payment() *PaymentEntity {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

func (e *WebhookEvent) Order() *OrderEntity {
	if e.Payload.Order == nil {
		return nil
	}
	return &e.Payload.Order.Entity
}

func (e *WebhookEvent) Refund() *Refund {
	if e.Payload.Refund == nil {
		return nil
	}
	return &e.Payload.Refund.Entity
}
