package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Mock is an in-process Gateway used for local runs (PAYMENT_GATEWAY=mock)
// and tests. Signatures are real HMACs over the configured secrets.
type Mock struct {
	keyID         string
	keySecret     string
	webhookSecret string

	mu      sync.Mutex
	orders  map[string]Order
	refunds map[string]Refund
	calls   map[string]int
	seq     atomic.Int64

	// Injected failures, returned verbatim when set.
	CreateOrderErr error
	RefundErr      error
	FetchRefundErr error
	// RefundOutcome is the status new refunds start in; pending by default.
	RefundOutcome RefundState
}

func NewMock(keyID, keySecret, webhookSecret string) *Mock {
	return &Mock{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		orders:        make(map[string]Order),
		refunds:       make(map[string]Refund),
		calls:         make(map[string]int),
		RefundOutcome: RefundStatePending,
	}
}

func (m *Mock) KeyID() string {
	return m.keyID
}

func (m *Mock) track(op string) {
	m.calls[op]++
}

// Calls reports how many times op was invoked.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Mock) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("CreateOrder")

	if m.CreateOrderErr != nil {
		return nil, m.CreateOrderErr
	}

	order := Order{
		ID:       fmt.Sprintf("order_mock%06d", m.seq.Add(1)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	m.orders[order.ID] = order
	return &order, nil
}

func (m *Mock) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("Refund")

	if m.RefundErr != nil {
		return nil, m.RefundErr
	}

	for _, r := range m.refunds {
		if r.PaymentID == req.PaymentID && r.Receipt == req.Receipt && r.Status != RefundStateFailed {
			return nil, &APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "refund with this receipt already exists"}
		}
	}

	refund := Refund{
		ID:        fmt.Sprintf("rfnd_mock%06d", m.seq.Add(1)),
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Receipt:   req.Receipt,
		Status:    m.RefundOutcome,
		Notes:     req.Notes,
	}
	m.refunds[refund.ID] = refund
	return &refund, nil
}

func (m *Mock) FetchRefund(ctx context.Context, paymentID, refundID string) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("FetchRefund")

	if m.FetchRefundErr != nil {
		return nil, m.FetchRefundErr
	}

	r, ok := m.refunds[refundID]
	if !ok || r.PaymentID != paymentID {
		return nil, &APIError{StatusCode: 404, Code: "BAD_REQUEST_ERROR", Description: "refund not found"}
	}
	return &r, nil
}

func (m *Mock) FindRefundByReceipt(ctx context.Context, paymentID, receipt string) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track("FindRefundByReceipt")

	if m.FetchRefundErr != nil {
		return nil, m.FetchRefundErr
	}

	var mine []Refund
	for _, r := range m.refunds {
		if r.PaymentID == paymentID {
			mine = append(mine, r)
		}
	}
	return pickByReceipt(mine, receipt), nil
}

// SetRefundStatus simulates the provider settling or failing a refund.
func (m *Mock) SetRefundStatus(refundID string, status RefundState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refunds[refundID]; ok {
		r.Status = status
		m.refunds[refundID] = r
	}
}

// Refunds returns every refund created so far.
func (m *Mock) Refunds() []Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Refund, 0, len(m.refunds))
	for _, r := range m.refunds {
		out = append(out, r)
	}
	return out
}

func (m *Mock) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyPayment(m.keySecret, orderID, paymentID, signature)
}

func (m *Mock) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(m.webhookSecret, body, signature)
}
