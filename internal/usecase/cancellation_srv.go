package usecase

import (
	"context"
	"fmt"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/dto/response"
	"stay-reservations/internal/gateway"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CancellationService interface {
	CancelReservation(ctx context.Context, actorID, reservationID string, req *request.CancelReservationRequest) (*response.CancelReservationResponse, error)
	CheckRefundStatus(ctx context.Context, userID, reservationID string) (*response.RefundStatusResponse, error)
	GetCancellationInfo(ctx context.Context, userID, reservationID string) (*response.CancellationInfoResponse, error)
}

type cancellationService struct {
	*lifecycle
	log *zap.Logger
}

func NewCancellationService(lc *lifecycle, log *zap.Logger) CancellationService {
	return &cancellationService{
		lifecycle: lc,
		log:       log.With(zap.String("service", "cancellation")),
	}
}

// RefundQuote is what a cancellation at a given moment would pay back.
type RefundQuote struct {
	Tier       *entity.RefundTier
	Percentage int
	Amount     int64
	Hours      float64
}

// QuoteRefund selects the best satisfied tier for the time left until
// check-in. The amount is rounded half-up to the minor unit.
func QuoteRefund(policy entity.CancellationPolicy, total int64, checkIn, now time.Time) RefundQuote {
	hours := checkIn.Sub(now).Hours()
	q := RefundQuote{Hours: hours}
	if tier, ok := policy.ApplicableTier(hours); ok {
		q.Tier = &tier
		q.Percentage = tier.RefundPercentage
	}
	q.Amount = RefundAmount(total, q.Percentage)
	return q
}

func RefundAmount(total int64, percentage int) int64 {
	if total <= 0 || percentage <= 0 {
		return 0
	}
	return (total*int64(percentage) + 50) / 100
}

func (s *cancellationService) CancelReservation(ctx context.Context, actorID, reservationID string, req *request.CancelReservationRequest) (*response.CancelReservationResponse, error) {
	ctx, span := tracer.Start(ctx, "cancellation.Cancel", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
	))
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationError("%s", utils.FormatValidationErrors(errs))
	}

	actor, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrUnauthenticated, actorID)
	}
	resID, err := uuid.Parse(reservationID)
	if err != nil {
		return nil, validationError("invalid reservation ID %s", reservationID)
	}

	var res *entity.Reservation
	now := s.now()
	err = s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		var listing *entity.Listing
		var err error
		res, listing, err = loadForParty(ctx, tx, resID, actor, true)
		if err != nil {
			return err
		}

		if status := res.EffectiveStatus(now); status != entity.ReservationConfirmed {
			return stateError("cannot cancel a %s reservation", status)
		}
		if !res.CheckIn.After(now) {
			return stateError("check-in has already passed")
		}

		quote := QuoteRefund(listing.Policy, res.TotalAmount, res.CheckIn, now)
		c := &entity.Cancellation{
			Reason:             req.Reason,
			CancelledAt:        now,
			CancelledBy:        actor,
			PolicyType:         listing.Policy.Type,
			HoursBeforeCheckIn: quote.Hours,
			RefundPercentage:   quote.Percentage,
			RefundAmount:       quote.Amount,
		}

		// confirmed -> cancelled -> refund-pending | refunded, in one commit.
		next := entity.ReservationRefundPending
		c.RefundStatus = entity.RefundPending
		if quote.Amount == 0 {
			next = entity.ReservationRefunded
			c.RefundStatus = entity.RefundNotRequired
			c.RefundedAt = &now
		}
		if !entity.CanTransition(res.Status, entity.ReservationCancelled) || !entity.CanTransition(entity.ReservationCancelled, next) {
			return stateError("cannot cancel a %s reservation", res.Status)
		}
		res.Status = next
		res.Cancellation = c
		res.CanEdit = false
		res.UpdatedAt = now

		return tx.Reservation.Update(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Reservation cancelled",
		zap.String("reservation_id", reservationID),
		zap.String("cancelled_by", actorID),
		zap.Int("refund_percentage", res.Cancellation.RefundPercentage),
		zap.Int64("refund_amount", res.Cancellation.RefundAmount),
	)
	s.publish(ctx, newEvent(EventReservationCancelled, res))

	if res.Status == entity.ReservationRefundPending {
		// A failed request stays refund-pending for the reconciler; the
		// cancellation itself has already committed.
		if updated, err := s.requestRefund(ctx, res); err == nil {
			res = updated
		}
	} else {
		s.publish(ctx, newEvent(EventReservationRefunded, res))
	}

	return &response.CancelReservationResponse{
		Reservation:      response.ReservationToResponse(res, s.now()),
		RefundAmount:     res.Cancellation.RefundAmount,
		RefundPercentage: res.Cancellation.RefundPercentage,
		RefundStatus:     res.Cancellation.RefundStatus,
	}, nil
}

// CheckRefundStatus reads through to the gateway while a refund is in
// flight, so a missed webhook does not leave the guest looking at stale state.
func (s *cancellationService) CheckRefundStatus(ctx context.Context, userID, reservationID string) (*response.RefundStatusResponse, error) {
	actor, resID, err := parseActorAndReservation(userID, reservationID)
	if err != nil {
		return nil, err
	}

	res, _, err := loadForParty(ctx, s.repo, resID, actor, true)
	if err != nil {
		return nil, err
	}
	if res.Cancellation == nil {
		return nil, stateError("reservation %s has not been cancelled", reservationID)
	}

	reconciled := false
	c := res.Cancellation
	if res.Status == entity.ReservationRefundPending && c.RefundID != nil && c.RefundStatus != entity.RefundFailed {
		if updated, ok := s.readThrough(ctx, res); ok {
			reconciled = updated.Status != res.Status || updated.Cancellation.RefundStatus != c.RefundStatus
			res = updated
		}
	}

	c = res.Cancellation
	return &response.RefundStatusResponse{
		ReservationID:    reservationID,
		Status:           res.Status,
		RefundStatus:     c.RefundStatus,
		RefundAmount:     c.RefundAmount,
		RefundPercentage: c.RefundPercentage,
		RefundID:         c.RefundID,
		RefundedAt:       c.RefundedAt,
		Reconciled:       reconciled,
	}, nil
}

func (s *cancellationService) readThrough(ctx context.Context, res *entity.Reservation) (*entity.Reservation, bool) {
	log := s.log.With(zap.String("reservation_id", res.ID.String()))

	order, err := s.repo.PaymentOrder.FindByReservationID(ctx, res.ID)
	if err != nil || order == nil || order.GatewayPaymentID == nil {
		log.Warn("No captured payment to reconcile refund against", zap.Error(err))
		return nil, false
	}

	refund, err := s.gw.FetchRefund(ctx, *order.GatewayPaymentID, *res.Cancellation.RefundID)
	if err != nil {
		log.Warn("Refund status read-through failed, serving local state", zap.Error(err))
		return nil, false
	}
	if refund.Status == gateway.RefundStatePending {
		return nil, false
	}

	updated, events, err := s.applyRefund(ctx, s.repo, res.ID, refund, false)
	if err != nil {
		log.Error("Failed to reconcile refund", zap.Error(err))
		return nil, false
	}
	s.publish(ctx, events...)
	return updated, true
}

// GetCancellationInfo previews a cancellation without changing anything.
// For a reservation already cancelled it reports the recorded values.
func (s *cancellationService) GetCancellationInfo(ctx context.Context, userID, reservationID string) (*response.CancellationInfoResponse, error) {
	actor, resID, err := parseActorAndReservation(userID, reservationID)
	if err != nil {
		return nil, err
	}

	res, listing, err := loadForParty(ctx, s.repo, resID, actor, true)
	if err != nil {
		return nil, err
	}

	info := &response.CancellationInfoResponse{
		ReservationID: reservationID,
		Policy:        listing.Policy,
		TotalAmount:   res.TotalAmount,
	}

	if c := res.Cancellation; c != nil {
		if p, ok := entity.DefaultPolicy(c.PolicyType); ok && p.Type != listing.Policy.Type {
			info.Policy = p
		}
		info.AlreadyCancelled = true
		info.RefundPercentage = c.RefundPercentage
		info.RefundAmount = c.RefundAmount
		info.HoursBeforeCheckIn = c.HoursBeforeCheckIn
		if tier, ok := info.Policy.ApplicableTier(c.HoursBeforeCheckIn); ok {
			info.ApplicableTier = &tier
		}
		info.Policy.Tiers = info.Policy.SortedTiers()
		return info, nil
	}

	now := s.now()
	quote := QuoteRefund(listing.Policy, res.TotalAmount, res.CheckIn, now)
	info.ApplicableTier = quote.Tier
	info.RefundPercentage = quote.Percentage
	info.RefundAmount = quote.Amount
	info.HoursBeforeCheckIn = quote.Hours
	info.Cancellable = res.EffectiveStatus(now) == entity.ReservationConfirmed && res.CheckIn.After(now)
	info.Policy.Tiers = info.Policy.SortedTiers()
	return info, nil
}

func parseActorAndReservation(userID, reservationID string) (uuid.UUID, uuid.UUID, error) {
	actor, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: invalid user ID %s", ErrUnauthenticated, userID)
	}
	resID, err := uuid.Parse(reservationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, validationError("invalid reservation ID %s", reservationID)
	}
	return actor, resID, nil
}

// loadForParty loads a reservation and its listing, allowing the guest and,
// when hostAllowed, the listing's host. Inside a transaction the
// reservation row is locked.
func loadForParty(ctx context.Context, repo *repository.Repository, resID, actor uuid.UUID, hostAllowed bool) (*entity.Reservation, *entity.Listing, error) {
	find := repo.Reservation.FindByID
	if repo.Tx == nil {
		find = repo.Reservation.FindByIDForUpdate
	}

	res, err := find(ctx, resID)
	if err != nil {
		return nil, nil, fmt.Errorf("find reservation %s: %w", resID, err)
	}
	if res == nil {
		return nil, nil, notFound("reservation", resID.String())
	}

	listing, err := repo.Listing.FindByID(ctx, res.ListingID)
	if err != nil {
		return nil, nil, fmt.Errorf("find listing %s: %w", res.ListingID, err)
	}
	if listing == nil {
		return nil, nil, notFound("listing", res.ListingID.String())
	}

	if res.GuestID != actor && !(hostAllowed && listing.HostID == actor) {
		return nil, nil, ErrForbidden
	}
	return res, listing, nil
}
