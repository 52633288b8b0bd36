package usecase

import (
	"context"
	"errors"
	"fmt"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/dto/response"
	"stay-reservations/internal/gateway"
	"stay-reservations/pkg/cache"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const dedupScopeWebhook = "webhook"

type WebhookService interface {
	HandleWebhook(ctx context.Context, req *request.WebhookRequest) (*response.WebhookResponse, error)
}

type webhookService struct {
	*lifecycle
	dedup cache.Dedup
	log   *zap.Logger
}

func NewWebhookService(lc *lifecycle, dedup cache.Dedup, log *zap.Logger) WebhookService {
	return &webhookService{
		lifecycle: lc,
		dedup:     dedup,
		log:       log.With(zap.String("service", "webhook")),
	}
}

// HandleWebhook applies a gateway event at most once per event id. The
// ledger row is locked while the event is applied and marked processed in
// the same transaction, so a crash before commit leaves it replayable.
func (s *webhookService) HandleWebhook(ctx context.Context, req *request.WebhookRequest) (*response.WebhookResponse, error) {
	ctx, span := tracer.Start(ctx, "webhook.Handle", trace.WithAttributes(
		attribute.Int("webhook.body_size", len(req.Body)),
	))
	defer span.End()

	if req.Signature == "" || !s.gw.VerifyWebhookSignature(req.Body, req.Signature) {
		s.log.Warn("Rejected webhook with invalid signature", zap.Int("body_size", len(req.Body)))
		return nil, ErrInvalidSignature
	}

	ev, err := gateway.ParseWebhook(req.Body)
	if err != nil {
		return nil, validationError("%v", err)
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = ev.ID
	}
	if eventID == "" {
		return nil, validationError("webhook event id is missing")
	}
	span.SetAttributes(
		attribute.String("webhook.event_id", eventID),
		attribute.String("webhook.event_type", ev.Event),
	)

	log := s.log.With(zap.String("event_id", eventID), zap.String("event_type", ev.Event))
	out := &response.WebhookResponse{EventID: eventID, EventType: ev.Event}

	seen, err := s.dedup.Seen(ctx, dedupScopeWebhook, eventID)
	if err != nil {
		log.Warn("Dedup cache unavailable, falling back to ledger", zap.Error(err))
	}
	if seen {
		out.Duplicate = true
		return out, nil
	}

	now := s.now()
	if _, err := s.repo.WebhookEvent.Insert(ctx, &entity.WebhookEvent{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
		EventID:    eventID,
		EventType:  ev.Event,
		Payload:    req.Body,
		Status:     entity.WebhookReceived,
	}); err != nil {
		return nil, fmt.Errorf("record webhook %s: %w", eventID, err)
	}

	var events []pendingEvent
	err = s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		events = nil

		record, err := tx.WebhookEvent.FindByEventIDForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("webhook %s vanished from the ledger", eventID)
		}
		if record.Status == entity.WebhookProcessed {
			out.Duplicate = true
			return nil
		}

		ignored, applied, err := s.dispatch(ctx, tx, ev, log)
		if err != nil {
			return err
		}
		out.Ignored = ignored
		events = applied

		return tx.WebhookEvent.MarkProcessed(ctx, eventID, s.now())
	})
	if err != nil {
		log.Error("Webhook processing failed", zap.Error(err))
		if markErr := s.repo.WebhookEvent.MarkFailed(ctx, eventID, err.Error()); markErr != nil {
			log.Error("Failed to mark webhook failed", zap.Error(markErr))
		}
		return nil, fmt.Errorf("process webhook %s: %w", eventID, err)
	}

	if err := s.dedup.Mark(ctx, dedupScopeWebhook, eventID); err != nil {
		log.Warn("Failed to cache processed webhook", zap.Error(err))
	}
	s.publish(ctx, events...)

	if out.Duplicate {
		log.Info("Duplicate webhook acknowledged")
	} else {
		log.Info("Webhook processed", zap.Bool("ignored", out.Ignored))
	}
	return out, nil
}

// dispatch applies one event inside the ledger transaction. ignored means
// the event type or its target needs no state change.
func (s *webhookService) dispatch(ctx context.Context, tx *repository.Repository, ev *gateway.WebhookEvent, log *zap.Logger) (ignored bool, events []pendingEvent, err error) {
	switch ev.Event {
	case gateway.EventPaymentCaptured, gateway.EventOrderPaid:
		return s.onPaymentCaptured(ctx, tx, ev, log)
	case gateway.EventPaymentFailed:
		return s.onPaymentFailed(ctx, tx, ev, log)
	case gateway.EventRefundProcessed, gateway.EventRefundFailed:
		return s.onRefundSettled(ctx, tx, ev, log)
	default:
		log.Debug("Ignoring webhook event type")
		return true, nil, nil
	}
}

func (s *webhookService) onPaymentCaptured(ctx context.Context, tx *repository.Repository, ev *gateway.WebhookEvent, log *zap.Logger) (bool, []pendingEvent, error) {
	payment := ev.Payment()
	if payment == nil {
		return false, nil, validationError("%s event without a payment entity", ev.Event)
	}
	orderID := payment.OrderID
	if orderID == "" && ev.Order() != nil {
		orderID = ev.Order().ID
	}

	order, err := tx.PaymentOrder.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	if order == nil {
		log.Warn("Captured payment for an unknown order", zap.String("order_id", orderID))
		return true, nil, nil
	}

	res, already, err := s.confirm(ctx, tx, order.ReservationID, payment.ID, nil, s.now())
	if errors.Is(err, ErrState) {
		// Retrying cannot change the outcome; the payment needs manual handling.
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if already {
		return false, nil, nil
	}
	return false, []pendingEvent{newEvent(EventReservationConfirmed, res)}, nil
}

func (s *webhookService) onPaymentFailed(ctx context.Context, tx *repository.Repository, ev *gateway.WebhookEvent, log *zap.Logger) (bool, []pendingEvent, error) {
	payment := ev.Payment()
	if payment == nil {
		return false, nil, validationError("%s event without a payment entity", ev.Event)
	}

	order, err := tx.PaymentOrder.FindByGatewayOrderID(ctx, payment.OrderID)
	if err != nil {
		return false, nil, err
	}
	if order == nil {
		log.Warn("Failed payment for an unknown order", zap.String("order_id", payment.OrderID))
		return true, nil, nil
	}

	paymentID := payment.ID
	res, changed, err := s.failPending(ctx, tx, order.ReservationID, &paymentID, s.now())
	if err != nil {
		return false, nil, err
	}
	if !changed {
		log.Info("Payment failure for a reservation no longer pending",
			zap.String("reservation_id", res.ID.String()),
			zap.String("status", string(res.Status)),
		)
		return true, nil, nil
	}
	log.Info("Reservation payment failed",
		zap.String("reservation_id", res.ID.String()),
		zap.String("error_code", payment.ErrorCode),
	)
	return false, []pendingEvent{newEvent(EventReservationPaymentFailed, res)}, nil
}

func (s *webhookService) onRefundSettled(ctx context.Context, tx *repository.Repository, ev *gateway.WebhookEvent, log *zap.Logger) (bool, []pendingEvent, error) {
	refund := ev.Refund()
	if refund == nil {
		return false, nil, validationError("%s event without a refund entity", ev.Event)
	}
	if ev.Event == gateway.EventRefundFailed {
		refund.Status = gateway.RefundStateFailed
	} else {
		refund.Status = gateway.RefundStateProcessed
	}

	reservationID, found, err := s.refundTarget(ctx, tx, refund)
	if err != nil {
		return false, nil, err
	}
	if !found {
		log.Warn("Refund event for an unknown reservation", zap.String("refund_id", refund.ID))
		return true, nil, nil
	}

	_, events, err := s.applyRefund(ctx, tx, reservationID, refund, false)
	if err != nil {
		return false, nil, err
	}
	return false, events, nil
}

// refundTarget resolves the reservation behind a refund: by stored refund
// id first, then by the reservation id we put in notes and receipt.
func (s *webhookService) refundTarget(ctx context.Context, tx *repository.Repository, refund *gateway.Refund) (uuid.UUID, bool, error) {
	res, err := tx.Reservation.FindByRefundID(ctx, refund.ID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if res != nil {
		return res.ID, true, nil
	}

	for _, candidate := range []string{refund.Notes["reservation_id"], refund.Receipt} {
		id, err := uuid.Parse(candidate)
		if err != nil {
			continue
		}
		res, err := tx.Reservation.FindByID(ctx, id)
		if err != nil {
			return uuid.Nil, false, err
		}
		if res != nil {
			return res.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}
