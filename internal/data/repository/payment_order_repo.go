package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type PaymentOrderRepository interface {
	Create(ctx context.Context, order *entity.PaymentOrder) error
	FindByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.PaymentOrder, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentOrder, error)
	// MarkPaid and MarkFailed only move orders out of created; false means no row changed.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, signature *string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, paymentID *string, at time.Time) (bool, error)
}

type paymentOrderRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentOrderRepository(db database.Querier, log *zap.Logger) PaymentOrderRepository {
	return &paymentOrderRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment_order")),
	}
}

func (r *paymentOrderRepository) Create(ctx context.Context, order *entity.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (id, reservation_id, gateway_order_id, amount, currency, status,
		                            gateway_payment_id, gateway_signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.ReservationID,
		order.GatewayOrderID,
		order.Amount,
		order.Currency,
		order.Status,
		order.GatewayPaymentID,
		order.GatewaySignature,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payment order",
			zap.Error(err),
			zap.String("reservation_id", order.ReservationID.String()),
			zap.String("gateway_order_id", order.GatewayOrderID),
		)
		return fmt.Errorf("create payment order %s: %w", order.GatewayOrderID, err)
	}

	return nil
}

func (r *paymentOrderRepository) FindByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.PaymentOrder, error) {
	query := `
		SELECT id, reservation_id, gateway_order_id, amount, currency, status,
		       gateway_payment_id, gateway_signature, created_at, updated_at
		FROM payment_orders
		WHERE reservation_id = $1
	`
	return r.findOne(ctx, query, reservationID)
}

func (r *paymentOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentOrder, error) {
	query := `
		SELECT id, reservation_id, gateway_order_id, amount, currency, status,
		       gateway_payment_id, gateway_signature, created_at, updated_at
		FROM payment_orders
		WHERE gateway_order_id = $1
	`
	return r.findOne(ctx, query, gatewayOrderID)
}

func (r *paymentOrderRepository) findOne(ctx context.Context, query string, key any) (*entity.PaymentOrder, error) {
	var order entity.PaymentOrder
	err := r.db.QueryRow(ctx, query, key).Scan(
		&order.ID,
		&order.ReservationID,
		&order.GatewayOrderID,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.GatewayPaymentID,
		&order.GatewaySignature,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment order", zap.Error(err), zap.Any("key", key))
		return nil, fmt.Errorf("find payment order %v: %w", key, err)
	}

	return &order, nil
}

func (r *paymentOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, signature *string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_orders
		SET status = 'paid', gateway_payment_id = $2, gateway_signature = COALESCE($3, gateway_signature), updated_at = $4
		WHERE id = $1 AND status = 'created'
	`

	result, err := r.db.Exec(ctx, query, id, paymentID, signature, at)
	if err != nil {
		r.log.Error("Failed to mark payment order paid",
			zap.Error(err),
			zap.String("payment_order_id", id.String()),
		)
		return false, fmt.Errorf("mark payment order %s paid: %w", id.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *paymentOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, paymentID *string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_orders
		SET status = 'failed', gateway_payment_id = COALESCE($2, gateway_payment_id), updated_at = $3
		WHERE id = $1 AND status = 'created'
	`

	result, err := r.db.Exec(ctx, query, id, paymentID, at)
	if err != nil {
		r.log.Error("Failed to mark payment order failed",
			zap.Error(err),
			zap.String("payment_order_id", id.String()),
		)
		return false, fmt.Errorf("mark payment order %s failed: %w", id.String(), err)
	}

	return result.RowsAffected() == 1, nil
}
