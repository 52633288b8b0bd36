package usecase

import (
	"context"
	"time"

	"stay-reservations/internal/data/entity"

	"go.uber.org/zap"
)

// Lifecycle event types on the reservation topic. A notification consumer
// turns them into guest and host emails.
const (
	EventReservationCreated         = "reservation.created"
	EventReservationConfirmed       = "reservation.confirmed"
	EventReservationPaymentFailed   = "reservation.payment_failed"
	EventReservationCancelled       = "reservation.cancelled"
	EventReservationRefundInitiated = "reservation.refund_initiated"
	EventReservationRefunded        = "reservation.refunded"
	EventReservationEdited          = "reservation.edited"
)

type ReservationEvent struct {
	ReservationID string                   `json:"reservationId"`
	ListingID     string                   `json:"listingId"`
	GuestID       string                   `json:"guestId"`
	Status        entity.ReservationStatus `json:"status"`
	CheckIn       time.Time                `json:"checkIn"`
	CheckOut      time.Time                `json:"checkOut"`
	TotalAmount   int64                    `json:"totalAmount"`
	Currency      string                   `json:"currency"`
	RefundAmount  int64                    `json:"refundAmount,omitempty"`
	RefundStatus  entity.RefundStatus      `json:"refundStatus,omitempty"`
}

type pendingEvent struct {
	eventType string
	res       entity.Reservation
}

func newEvent(eventType string, res *entity.Reservation) pendingEvent {
	return pendingEvent{eventType: eventType, res: *res}
}

// publish runs after commit. A failed publish is logged and never fails the
// operation that produced it.
func (l *lifecycle) publish(ctx context.Context, events ...pendingEvent) {
	for _, ev := range events {
		payload := ReservationEvent{
			ReservationID: ev.res.ID.String(),
			ListingID:     ev.res.ListingID.String(),
			GuestID:       ev.res.GuestID.String(),
			Status:        ev.res.Status,
			CheckIn:       ev.res.CheckIn,
			CheckOut:      ev.res.CheckOut,
			TotalAmount:   ev.res.TotalAmount,
			Currency:      ev.res.Currency,
		}
		if c := ev.res.Cancellation; c != nil {
			payload.RefundAmount = c.RefundAmount
			payload.RefundStatus = c.RefundStatus
		}

		if err := l.events.Publish(ctx, ev.eventType, payload.ReservationID, payload); err != nil {
			l.log.Warn("Failed to publish reservation event",
				zap.Error(err),
				zap.String("event_type", ev.eventType),
				zap.String("reservation_id", payload.ReservationID),
			)
		}
	}
}
