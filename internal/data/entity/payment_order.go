package entity

import (
	"github.com/google/uuid"
)

type PaymentOrderStatus string

const (
	PaymentOrderCreated PaymentOrderStatus = "created"
	PaymentOrderPaid    PaymentOrderStatus = "paid"
	PaymentOrderFailed  PaymentOrderStatus = "failed"
)

// PaymentOrder mirrors one gateway order; it is never reused across reservations.
type PaymentOrder struct {
	BaseNoDelete
	ReservationID    uuid.UUID          `db:"reservation_id"`
	GatewayOrderID   string             `db:"gateway_order_id"`
	Amount           int64              `db:"amount"`
	Currency         string             `db:"currency"`
	Status           PaymentOrderStatus `db:"status"`
	GatewayPaymentID *string            `db:"gateway_payment_id"`
	GatewaySignature *string            `db:"gateway_signature"`
}
