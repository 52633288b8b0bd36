package usecase

import (
	"context"
	"fmt"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/gateway"

	"go.uber.org/zap"
)

const maintenanceBatch = 100

// MaintenanceService holds the periodic jobs that drive reservations out of
// their time-bound states.
type MaintenanceService interface {
	// ExpireStaleHolds fails pending reservations whose hold has lapsed.
	ExpireStaleHolds(ctx context.Context) (int, error)
	// ReconcileRefunds pushes refund-pending reservations toward refunded.
	// It retries without limit; every pass is safe to repeat.
	ReconcileRefunds(ctx context.Context) (int, error)
	CleanSessions(ctx context.Context) (int64, error)
}

type maintenanceService struct {
	*lifecycle
	log *zap.Logger
}

func NewMaintenanceService(lc *lifecycle, log *zap.Logger) MaintenanceService {
	return &maintenanceService{
		lifecycle: lc,
		log:       log.With(zap.String("service", "maintenance")),
	}
}

func (s *maintenanceService) ExpireStaleHolds(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.repo.Reservation.FindExpiredHolds(ctx, now, maintenanceBatch)
	if err != nil {
		return 0, fmt.Errorf("find expired holds: %w", err)
	}

	expired := 0
	for _, r := range stale {
		var (
			res     *entity.Reservation
			changed bool
		)
		err := s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
			var err error
			res, changed, err = s.failPending(ctx, tx, r.ID, nil, now)
			return err
		})
		if err != nil {
			s.log.Error("Failed to expire hold", zap.Error(err), zap.String("reservation_id", r.ID.String()))
			continue
		}
		if changed {
			expired++
			s.publish(ctx, newEvent(EventReservationPaymentFailed, res))
		}
	}

	if expired > 0 {
		s.log.Info("Expired stale holds", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *maintenanceService) ReconcileRefunds(ctx context.Context) (int, error) {
	pending, err := s.repo.Reservation.FindRefundPending(ctx, maintenanceBatch)
	if err != nil {
		return 0, fmt.Errorf("find pending refunds: %w", err)
	}

	settled := 0
	for _, res := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := s.reconcileOne(ctx, res)
		if err != nil {
			s.log.Warn("Refund still pending",
				zap.Error(err),
				zap.String("reservation_id", res.ID.String()),
				zap.Int("attempts", res.Cancellation.RefundAttempts),
			)
			continue
		}
		if updated != nil && updated.Status == entity.ReservationRefunded {
			settled++
		}
	}

	if len(pending) > 0 {
		s.log.Info("Refund reconciliation pass",
			zap.Int("pending", len(pending)),
			zap.Int("settled", settled),
		)
	}
	return settled, nil
}

// reconcileOne follows a stored refund id, or looks the refund up by
// receipt when the id was never stored, and only then asks for a new one.
func (s *maintenanceService) reconcileOne(ctx context.Context, res *entity.Reservation) (*entity.Reservation, error) {
	c := res.Cancellation
	if c == nil {
		return nil, fmt.Errorf("reservation %s is refund-pending without cancellation data", res.ID)
	}

	order, err := s.repo.PaymentOrder.FindByReservationID(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.GatewayPaymentID == nil {
		err := fmt.Errorf("reservation %s has no captured payment", res.ID)
		s.recordRefundFailure(ctx, res.ID, err)
		return nil, err
	}
	paymentID := *order.GatewayPaymentID

	var refund *gateway.Refund
	if c.RefundID != nil && c.RefundStatus != entity.RefundFailed {
		refund, err = s.gw.FetchRefund(ctx, paymentID, *c.RefundID)
	} else {
		refund, err = s.gw.FindRefundByReceipt(ctx, paymentID, res.ID.String())
		if refund != nil && refund.Status == gateway.RefundStateFailed {
			refund = nil
		}
	}
	if err != nil {
		s.recordRefundFailure(ctx, res.ID, err)
		return nil, gatewayError("look up refund", err)
	}

	if refund == nil {
		return s.requestRefund(ctx, res)
	}

	updated, events, err := s.applyRefund(ctx, s.repo, res.ID, refund, false)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events...)
	return updated, nil
}

func (s *maintenanceService) CleanSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.Session.CleanExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	if n > 0 {
		s.log.Info("Cleaned expired sessions", zap.Int64("count", n))
	}
	return n, nil
}
