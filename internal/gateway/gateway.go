// Package gateway talks to the payment provider. Amounts are always in
// minor currency units (paise for INR).
package gateway

import (
	"context"
	"errors"
	"fmt"
)

type RefundState string

const (
	RefundStatePending   RefundState = "pending"
	RefundStateProcessed RefundState = "processed"
	RefundStateFailed    RefundState = "failed"
)

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    Notes
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type RefundRequest struct {
	PaymentID string
	Amount    int64
	Receipt   string
	Notes     Notes
}

type Refund struct {
	ID        string      `json:"id"`
	PaymentID string      `json:"payment_id"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	Receipt   string      `json:"receipt"`
	Status    RefundState `json:"status"`
	Notes     Notes       `json:"notes"`
}

// Gateway is the provider-facing port used by the reservation services.
type Gateway interface {
	// KeyID is the public key the client checkout needs.
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	FetchRefund(ctx context.Context, paymentID, refundID string) (*Refund, error)
	// FindRefundByReceipt returns nil, nil when the payment has no refund with
	// that receipt. A failed refund is only returned when no other one exists.
	FindRefundByReceipt(ctx context.Context, paymentID, receipt string) (*Refund, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("payment gateway unavailable")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// pickByReceipt prefers a live refund over a failed one for the same receipt.
func pickByReceipt(refunds []Refund, receipt string) *Refund {
	var failed *Refund
	for i := range refunds {
		if refunds[i].Receipt != receipt {
			continue
		}
		if refunds[i].Status != RefundStateFailed {
			return &refunds[i]
		}
		failed = &refunds[i]
	}
	return failed
}
