package usecase

import (
	"context"
	"fmt"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/gateway"
	"stay-reservations/pkg/messaging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lifecycle holds the state transitions shared by the verify, webhook,
// cancellation and background paths. Methods taking a repository run
// against it as given, so callers decide the transaction scope.
type lifecycle struct {
	repo   *repository.Repository
	gw     gateway.Gateway
	events messaging.Publisher
	now    func() time.Time
	log    *zap.Logger
}

// confirm moves a pending reservation to confirmed and its order to paid.
// already is true when another path confirmed it first; nothing is written then.
func (l *lifecycle) confirm(ctx context.Context, tx *repository.Repository, reservationID uuid.UUID, paymentID string, signature *string, now time.Time) (res *entity.Reservation, already bool, err error) {
	res, err = tx.Reservation.FindByIDForUpdate(ctx, reservationID)
	if err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, notFound("reservation", reservationID.String())
	}

	switch res.Status {
	case entity.ReservationConfirmed:
		return res, true, nil
	case entity.ReservationPendingPayment:
	default:
		l.log.Warn("Payment arrived for a reservation that can no longer be confirmed",
			zap.String("reservation_id", res.ID.String()),
			zap.String("status", string(res.Status)),
			zap.String("payment_id", paymentID),
		)
		return res, false, stateError("reservation is %s", res.Status)
	}

	// The sweeper has not released this hold yet; confirm only if nobody
	// else took the dates in the meantime.
	if !res.HoldExpiresAt.After(now) {
		if _, err := tx.Listing.FindByIDForUpdate(ctx, res.ListingID); err != nil {
			return nil, false, fmt.Errorf("lock listing %s: %w", res.ListingID, err)
		}
		free, err := isAvailable(ctx, tx, res.ListingID, res.CheckIn, res.CheckOut, res.ID, now)
		if err != nil {
			return nil, false, err
		}
		if !free {
			l.log.Warn("Late payment for released dates, refund manually",
				zap.String("reservation_id", res.ID.String()),
				zap.String("payment_id", paymentID),
			)
			return res, false, stateError("hold expired and the dates were taken")
		}
	}

	swapped, err := tx.Reservation.UpdateStatus(ctx, res.ID, entity.ReservationPendingPayment, entity.ReservationConfirmed, now)
	if err != nil {
		return nil, false, fmt.Errorf("confirm reservation %s: %w", res.ID, err)
	}
	if !swapped {
		return res, false, stateError("reservation %s changed concurrently", res.ID)
	}

	order, err := tx.PaymentOrder.FindByReservationID(ctx, res.ID)
	if err != nil {
		return nil, false, err
	}
	if order == nil {
		return nil, false, fmt.Errorf("reservation %s has no payment order", res.ID)
	}
	if _, err := tx.PaymentOrder.MarkPaid(ctx, order.ID, paymentID, signature, now); err != nil {
		return nil, false, fmt.Errorf("mark order %s paid: %w", order.GatewayOrderID, err)
	}

	res.Status = entity.ReservationConfirmed
	res.ConfirmedAt = &now
	res.UpdatedAt = now
	return res, false, nil
}

// failPending moves a pending reservation to payment-failed and its order
// to failed. Any other status is left alone and changed is false.
func (l *lifecycle) failPending(ctx context.Context, tx *repository.Repository, reservationID uuid.UUID, paymentID *string, now time.Time) (res *entity.Reservation, changed bool, err error) {
	res, err = tx.Reservation.FindByIDForUpdate(ctx, reservationID)
	if err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, notFound("reservation", reservationID.String())
	}
	if res.Status != entity.ReservationPendingPayment {
		return res, false, nil
	}

	swapped, err := tx.Reservation.UpdateStatus(ctx, res.ID, entity.ReservationPendingPayment, entity.ReservationPaymentFailed, now)
	if err != nil {
		return nil, false, fmt.Errorf("fail reservation %s: %w", res.ID, err)
	}
	if !swapped {
		return res, false, nil
	}

	order, err := tx.PaymentOrder.FindByReservationID(ctx, res.ID)
	if err != nil {
		return nil, false, err
	}
	if order != nil {
		if _, err := tx.PaymentOrder.MarkFailed(ctx, order.ID, paymentID, now); err != nil {
			return nil, false, fmt.Errorf("mark order %s failed: %w", order.GatewayOrderID, err)
		}
	}

	res.Status = entity.ReservationPaymentFailed
	res.UpdatedAt = now
	return res, true, nil
}

// applyRefund records the gateway's view of a refund. requested marks a
// fresh refund request, which counts as an attempt.
func (l *lifecycle) applyRefund(ctx context.Context, repo *repository.Repository, reservationID uuid.UUID, refund *gateway.Refund, requested bool) (*entity.Reservation, []pendingEvent, error) {
	var (
		out    *entity.Reservation
		events []pendingEvent
	)

	err := repo.WithinTx(ctx, func(tx *repository.Repository) error {
		res, err := tx.Reservation.FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return notFound("reservation", reservationID.String())
		}
		out = res

		c := res.Cancellation
		if res.Status != entity.ReservationRefundPending || c == nil {
			return nil
		}

		now := l.now()
		before := c.RefundStatus
		c.RefundID = &refund.ID
		if requested {
			c.RefundAttempts++
		}

		switch refund.Status {
		case gateway.RefundStateProcessed:
			if !entity.CanTransition(res.Status, entity.ReservationRefunded) {
				return stateError("cannot refund a %s reservation", res.Status)
			}
			res.Status = entity.ReservationRefunded
			c.RefundStatus = entity.RefundCompleted
			c.RefundedAt = &now
			c.LastRefundError = nil
			events = append(events, newEvent(EventReservationRefunded, res))
		case gateway.RefundStateFailed:
			c.RefundStatus = entity.RefundFailed
			msg := fmt.Sprintf("refund %s failed at the gateway", refund.ID)
			c.LastRefundError = &msg
		default:
			c.RefundStatus = entity.RefundInitiated
			c.LastRefundError = nil
			if before != entity.RefundInitiated {
				events = append(events, newEvent(EventReservationRefundInitiated, res))
			}
		}

		res.UpdatedAt = now
		return tx.Reservation.Update(ctx, res)
	})
	if err != nil {
		return nil, nil, err
	}
	return out, events, nil
}

func (l *lifecycle) recordRefundFailure(ctx context.Context, reservationID uuid.UUID, cause error) {
	err := l.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		res, err := tx.Reservation.FindByIDForUpdate(ctx, reservationID)
		if err != nil || res == nil || res.Status != entity.ReservationRefundPending || res.Cancellation == nil {
			return err
		}
		msg := cause.Error()
		res.Cancellation.RefundAttempts++
		res.Cancellation.LastRefundError = &msg
		res.UpdatedAt = l.now()
		return tx.Reservation.Update(ctx, res)
	})
	if err != nil {
		l.log.Error("Failed to record refund failure",
			zap.Error(err),
			zap.String("reservation_id", reservationID.String()),
		)
	}
}

// requestRefund asks the gateway for the reservation's refund. It must run
// outside any transaction. The receipt is the reservation id, which lets the
// reconciler find a refund whose response was lost.
func (l *lifecycle) requestRefund(ctx context.Context, res *entity.Reservation) (*entity.Reservation, error) {
	c := res.Cancellation
	if c == nil || c.RefundAmount <= 0 {
		return res, nil
	}

	order, err := l.repo.PaymentOrder.FindByReservationID(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.GatewayPaymentID == nil {
		err := fmt.Errorf("reservation %s has no captured payment to refund", res.ID)
		l.recordRefundFailure(ctx, res.ID, err)
		return nil, err
	}

	refund, err := l.gw.Refund(ctx, gateway.RefundRequest{
		PaymentID: *order.GatewayPaymentID,
		Amount:    c.RefundAmount,
		Receipt:   res.ID.String(),
		Notes: gateway.Notes{
			"reservation_id": res.ID.String(),
			"reason":         "cancellation",
		},
	})
	if err != nil {
		l.log.Warn("Refund request failed, reconciler will retry",
			zap.Error(err),
			zap.String("reservation_id", res.ID.String()),
			zap.Int64("amount", c.RefundAmount),
		)
		l.recordRefundFailure(ctx, res.ID, err)
		return nil, gatewayError("refund", err)
	}

	l.log.Info("Refund requested",
		zap.String("reservation_id", res.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.String("refund_status", string(refund.Status)),
	)

	updated, events, err := l.applyRefund(ctx, l.repo, res.ID, refund, true)
	if err != nil {
		return nil, err
	}
	l.publish(ctx, events...)
	return updated, nil
}
