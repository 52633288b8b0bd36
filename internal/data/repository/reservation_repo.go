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

type ReservationRepository interface {
	Create(ctx context.Context, reservation *entity.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Reservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Reservation, error)
	FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Reservation, error)
	CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error)
	Update(ctx context.Context, reservation *entity.Reservation) error

	// Business queries

	// HasOverlap reports whether another reservation blocks [checkIn, checkOut)
	// at now. excludeID may be uuid.Nil.
	HasOverlap(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID, now time.Time) (bool, error)
	// UpdateStatus is a compare-and-swap; it returns false when the row was not in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.ReservationStatus, at time.Time) (bool, error)
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error)
	FindRefundPending(ctx context.Context, limit int) ([]*entity.Reservation, error)
	FindByRefundID(ctx context.Context, refundID string) (*entity.Reservation, error)
}

type reservationRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewReservationRepository(db database.Querier, log *zap.Logger) ReservationRepository {
	return &reservationRepository{
		db:  db,
		log: log.With(zap.String("repository", "reservation")),
	}
}

const reservationColumns = `
	id, listing_id, guest_id, check_in, check_out, adults, children, infants, pets,
	message, total_amount, currency, status, hold_expires_at, confirmed_at, can_edit,
	cancellation_reason, cancelled_at, cancelled_by, cancellation_policy, hours_before_check_in,
	refund_percentage, refund_amount, refund_status, refund_id, refunded_at, refund_attempts,
	last_refund_error, created_at, updated_at`

func scanReservation(row pgx.Row) (*entity.Reservation, error) {
	var (
		res          entity.Reservation
		reason       *string
		cancelledAt  *time.Time
		cancelledBy  *uuid.UUID
		policyType   *string
		hoursBefore  *float64
		refundPct    *int
		refundAmount *int64
		refundStatus string
		refundID     *string
		refundedAt   *time.Time
		attempts     int
		lastError    *string
	)

	err := row.Scan(
		&res.ID,
		&res.ListingID,
		&res.GuestID,
		&res.CheckIn,
		&res.CheckOut,
		&res.Guests.Adults,
		&res.Guests.Children,
		&res.Guests.Infants,
		&res.Guests.Pets,
		&res.Message,
		&res.TotalAmount,
		&res.Currency,
		&res.Status,
		&res.HoldExpiresAt,
		&res.ConfirmedAt,
		&res.CanEdit,
		&reason,
		&cancelledAt,
		&cancelledBy,
		&policyType,
		&hoursBefore,
		&refundPct,
		&refundAmount,
		&refundStatus,
		&refundID,
		&refundedAt,
		&attempts,
		&lastError,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cancelledAt != nil {
		c := &entity.Cancellation{
			CancelledAt:     *cancelledAt,
			RefundStatus:    entity.RefundStatus(refundStatus),
			RefundID:        refundID,
			RefundedAt:      refundedAt,
			RefundAttempts:  attempts,
			LastRefundError: lastError,
		}
		if reason != nil {
			c.Reason = *reason
		}
		if cancelledBy != nil {
			c.CancelledBy = *cancelledBy
		}
		if policyType != nil {
			c.PolicyType = entity.PolicyType(*policyType)
		}
		if hoursBefore != nil {
			c.HoursBeforeCheckIn = *hoursBefore
		}
		if refundPct != nil {
			c.RefundPercentage = *refundPct
		}
		if refundAmount != nil {
			c.RefundAmount = *refundAmount
		}
		res.Cancellation = c
	}

	return &res, nil
}

// cancellationArgs flattens the optional cancellation into nullable columns,
// in the order used by Create and Update.
func cancellationArgs(c *entity.Cancellation) []any {
	if c == nil {
		return []any{nil, nil, nil, nil, nil, nil, nil, string(entity.RefundNone), nil, nil, 0, nil}
	}
	return []any{
		c.Reason,
		c.CancelledAt,
		c.CancelledBy,
		string(c.PolicyType),
		c.HoursBeforeCheckIn,
		c.RefundPercentage,
		c.RefundAmount,
		string(c.RefundStatus),
		c.RefundID,
		c.RefundedAt,
		c.RefundAttempts,
		c.LastRefundError,
	}
}

func (r *reservationRepository) Create(ctx context.Context, res *entity.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`

	args := []any{
		res.ID,
		res.ListingID,
		res.GuestID,
		res.CheckIn,
		res.CheckOut,
		res.Guests.Adults,
		res.Guests.Children,
		res.Guests.Infants,
		res.Guests.Pets,
		res.Message,
		res.TotalAmount,
		res.Currency,
		res.Status,
		res.HoldExpiresAt,
		res.ConfirmedAt,
		res.CanEdit,
	}
	args = append(args, cancellationArgs(res.Cancellation)...)
	args = append(args, res.CreatedAt, res.UpdatedAt)

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to create reservation",
			zap.Error(err),
			zap.String("reservation_id", res.ID.String()),
			zap.String("listing_id", res.ListingID.String()),
		)
		return fmt.Errorf("create reservation %s: %w", res.ID.String(), err)
	}

	return nil
}

func (r *reservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.findOne(ctx, "find reservation by ID", query, id)
}

func (r *reservationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, "lock reservation", query, id)
}

func (r *reservationRepository) FindByRefundID(ctx context.Context, refundID string) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE refund_id = $1`
	return r.findOne(ctx, "find reservation by refund ID", query, refundID)
}

func (r *reservationRepository) findOne(ctx context.Context, op, query string, arg any) (*entity.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to "+op, zap.Error(err), zap.Any("key", arg))
		return nil, fmt.Errorf("%s %v: %w", op, arg, err)
	}
	return res, nil
}

func (r *reservationRepository) findMany(ctx context.Context, op, query string, args ...any) ([]*entity.Reservation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var reservations []*entity.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			r.log.Error("Failed to scan reservation row", zap.Error(err))
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}

	return reservations, nil
}

func (r *reservationRepository) FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE guest_id = $1
		ORDER BY check_in DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.findMany(ctx, "find reservations by guest ID "+guestID.String(), query, guestID, limit, offset)
}

func (r *reservationRepository) CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM reservations WHERE guest_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, guestID).Scan(&count); err != nil {
		r.log.Error("Failed to count reservations by guest ID",
			zap.Error(err),
			zap.String("guest_id", guestID.String()),
		)
		return 0, fmt.Errorf("count reservations by guest ID %s: %w", guestID.String(), err)
	}

	return count, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *entity.Reservation) error {
	query := `
		UPDATE reservations
		SET check_in = $2, check_out = $3, total_amount = $4, status = $5, confirmed_at = $6, can_edit = $7,
		    cancellation_reason = $8, cancelled_at = $9, cancelled_by = $10, cancellation_policy = $11,
		    hours_before_check_in = $12, refund_percentage = $13, refund_amount = $14, refund_status = $15,
		    refund_id = $16, refunded_at = $17, refund_attempts = $18, last_refund_error = $19,
		    updated_at = $20
		WHERE id = $1
	`

	args := []any{res.ID, res.CheckIn, res.CheckOut, res.TotalAmount, res.Status, res.ConfirmedAt, res.CanEdit}
	args = append(args, cancellationArgs(res.Cancellation)...)
	args = append(args, res.UpdatedAt)

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to update reservation",
			zap.Error(err),
			zap.String("reservation_id", res.ID.String()),
		)
		return fmt.Errorf("update reservation %s: %w", res.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s not found", res.ID.String())
	}

	return nil
}

func (r *reservationRepository) HasOverlap(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE listing_id = $1
			  AND check_in < $3 AND $2 < check_out
			  AND id <> $4
			  AND (status = 'confirmed' OR (status = 'pending-payment' AND hold_expires_at > $5))
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, listingID, checkIn, checkOut, excludeID, now).Scan(&exists)
	if err != nil {
		r.log.Error("Failed to check reservation overlap",
			zap.Error(err),
			zap.String("listing_id", listingID.String()),
		)
		return false, fmt.Errorf("check overlap for listing %s: %w", listingID.String(), err)
	}

	return exists, nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.ReservationStatus, at time.Time) (bool, error) {
	query := `
		UPDATE reservations
		SET status = $3,
		    confirmed_at = CASE WHEN $3 = 'confirmed' THEN $4 ELSE confirmed_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.Exec(ctx, query, id, from, to, at)
	if err != nil {
		r.log.Error("Failed to update reservation status",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false, fmt.Errorf("update reservation %s status %s to %s: %w", id.String(), from, to, err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *reservationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'pending-payment' AND hold_expires_at <= $1
		ORDER BY hold_expires_at
		LIMIT $2
	`
	return r.findMany(ctx, "find expired holds", query, now, limit)
}

func (r *reservationRepository) FindRefundPending(ctx context.Context, limit int) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = 'refund-pending'
		ORDER BY cancelled_at
		LIMIT $1
	`
	return r.findMany(ctx, "find refund-pending reservations", query, limit)
}
