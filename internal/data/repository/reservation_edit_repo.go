package repository

import (
	"context"
	"fmt"

	"stay-reservations/internal/data/entity"
	"stay-reservations/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReservationEditRepository interface {
	Create(ctx context.Context, edit *entity.ReservationEdit) error
	FindByReservationID(ctx context.Context, reservationID uuid.UUID) ([]*entity.ReservationEdit, error)
}

type reservationEditRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewReservationEditRepository(db database.Querier, log *zap.Logger) ReservationEditRepository {
	return &reservationEditRepository{
		db:  db,
		log: log.With(zap.String("repository", "reservation_edit")),
	}
}

func (r *reservationEditRepository) Create(ctx context.Context, edit *entity.ReservationEdit) error {
	query := `
		INSERT INTO reservation_edits (id, reservation_id, edited_by, previous_check_in, previous_check_out,
		                               new_check_in, new_check_out, previous_total, new_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		edit.ID,
		edit.ReservationID,
		edit.EditedBy,
		edit.PreviousCheckIn,
		edit.PreviousCheckOut,
		edit.NewCheckIn,
		edit.NewCheckOut,
		edit.PreviousTotal,
		edit.NewTotal,
		edit.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create reservation edit",
			zap.Error(err),
			zap.String("reservation_id", edit.ReservationID.String()),
		)
		return fmt.Errorf("create reservation edit for %s: %w", edit.ReservationID.String(), err)
	}

	return nil
}

func (r *reservationEditRepository) FindByReservationID(ctx context.Context, reservationID uuid.UUID) ([]*entity.ReservationEdit, error) {
	query := `
		SELECT id, reservation_id, edited_by, previous_check_in, previous_check_out,
		       new_check_in, new_check_out, previous_total, new_total, created_at
		FROM reservation_edits
		WHERE reservation_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, reservationID)
	if err != nil {
		r.log.Error("Failed to find reservation edits",
			zap.Error(err),
			zap.String("reservation_id", reservationID.String()),
		)
		return nil, fmt.Errorf("find edits for reservation %s: %w", reservationID.String(), err)
	}
	defer rows.Close()

	var edits []*entity.ReservationEdit
	for rows.Next() {
		var edit entity.ReservationEdit
		err := rows.Scan(
			&edit.ID,
			&edit.ReservationID,
			&edit.EditedBy,
			&edit.PreviousCheckIn,
			&edit.PreviousCheckOut,
			&edit.NewCheckIn,
			&edit.NewCheckOut,
			&edit.PreviousTotal,
			&edit.NewTotal,
			&edit.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan reservation edit row", zap.Error(err))
			return nil, fmt.Errorf("scan reservation edit row: %w", err)
		}
		edits = append(edits, &edit)
	}

	return edits, rows.Err()
}
