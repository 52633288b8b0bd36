package usecase

import (
	"context"
	"fmt"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/dto/response"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ReservationService interface {
	GetReservation(ctx context.Context, userID, reservationID string) (*response.ReservationDetailResponse, error)
	ListReservations(ctx context.Context, userID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.ReservationResponse], error)
	EditReservation(ctx context.Context, userID, reservationID string, req *request.EditReservationRequest) (*response.EditReservationResponse, error)
}

type reservationService struct {
	*lifecycle
	cfg utils.ReservationConfig
	log *zap.Logger
}

func NewReservationService(lc *lifecycle, cfg utils.ReservationConfig, log *zap.Logger) ReservationService {
	if cfg.EditWindowHours < utils.MinEditWindowHours {
		cfg.EditWindowHours = utils.MinEditWindowHours
	}
	return &reservationService{
		lifecycle: lc,
		cfg:       cfg,
		log:       log.With(zap.String("service", "reservation")),
	}
}

func (s *reservationService) GetReservation(ctx context.Context, userID, reservationID string) (*response.ReservationDetailResponse, error) {
	actor, resID, err := parseActorAndReservation(userID, reservationID)
	if err != nil {
		return nil, err
	}

	res, _, err := loadForParty(ctx, s.repo, resID, actor, true)
	if err != nil {
		return nil, err
	}

	edits, err := s.repo.ReservationEdit.FindByReservationID(ctx, resID)
	if err != nil {
		return nil, fmt.Errorf("find edits for reservation %s: %w", reservationID, err)
	}

	detail := &response.ReservationDetailResponse{
		ReservationResponse: response.ReservationToResponse(res, s.now()),
		Edits:               make([]response.ReservationEditResponse, 0, len(edits)),
	}
	for _, e := range edits {
		detail.Edits = append(detail.Edits, response.ReservationEditToResponse(e))
	}
	return detail, nil
}

func (s *reservationService) ListReservations(ctx context.Context, userID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.ReservationResponse], error) {
	guestID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrUnauthenticated, userID)
	}

	limit := req.Limit()
	offset := req.Offset()

	reservations, err := s.repo.Reservation.FindByGuestID(ctx, guestID, limit, offset)
	if err != nil {
		s.log.Error("Failed to list reservations", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	total, err := s.repo.Reservation.CountByGuestID(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}

	now := s.now()
	items := make([]response.ReservationResponse, 0, len(reservations))
	for _, r := range reservations {
		items = append(items, response.ReservationToResponse(r, now))
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	return response.NewPaginatedResponse(items, page, limit, total), nil
}

// EditReservation moves a confirmed stay to new dates. The new total may
// not exceed what was captured; a cheaper stay records the difference as a
// credit on the edit history.
func (s *reservationService) EditReservation(ctx context.Context, userID, reservationID string, req *request.EditReservationRequest) (*response.EditReservationResponse, error) {
	ctx, span := tracer.Start(ctx, "reservation.Edit", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
	))
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationError("%s", utils.FormatValidationErrors(errs))
	}

	actor, resID, err := parseActorAndReservation(userID, reservationID)
	if err != nil {
		return nil, err
	}

	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	var (
		res  *entity.Reservation
		edit *entity.ReservationEdit
	)
	now := s.now()
	err = s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		var err error
		res, _, err = loadForParty(ctx, tx, resID, actor, false)
		if err != nil {
			return err
		}

		if status := res.EffectiveStatus(now); status != entity.ReservationConfirmed {
			return stateError("cannot edit a %s reservation", status)
		}
		if !res.CanEdit {
			return stateError("reservation %s cannot be edited", reservationID)
		}
		if res.HoursUntilCheckIn(now) < float64(s.cfg.EditWindowHours) {
			return stateError("dates can only be changed more than %d hours before check-in", s.cfg.EditWindowHours)
		}
		if !checkIn.After(now) {
			return validationError("new check-in must be in the future")
		}
		if checkIn.Equal(res.CheckIn) && checkOut.Equal(res.CheckOut) {
			return validationError("new dates are the same as the current ones")
		}

		listing, err := tx.Listing.FindByIDForUpdate(ctx, res.ListingID)
		if err != nil {
			return fmt.Errorf("lock listing %s: %w", res.ListingID, err)
		}
		if listing == nil {
			return notFound("listing", res.ListingID.String())
		}

		free, err := isAvailable(ctx, tx, res.ListingID, checkIn, checkOut, res.ID, now)
		if err != nil {
			return err
		}
		if !free {
			return ErrConflict
		}

		price, err := CalculatePrice(listing, checkIn, checkOut, res.Guests, res.Currency)
		if err != nil {
			return err
		}

		order, err := tx.PaymentOrder.FindByReservationID(ctx, res.ID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("reservation %s has no payment order", res.ID)
		}
		if price.Total > order.Amount {
			return validationError("new total %d exceeds the %d already paid; cancel and rebook instead", price.Total, order.Amount)
		}

		edit = &entity.ReservationEdit{
			BaseSimple:       entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
			ReservationID:    res.ID,
			EditedBy:         actor,
			PreviousCheckIn:  res.CheckIn,
			PreviousCheckOut: res.CheckOut,
			NewCheckIn:       checkIn,
			NewCheckOut:      checkOut,
			PreviousTotal:    res.TotalAmount,
			NewTotal:         price.Total,
		}

		res.CheckIn = checkIn
		res.CheckOut = checkOut
		res.TotalAmount = price.Total
		res.UpdatedAt = now

		if err := tx.Reservation.Update(ctx, res); err != nil {
			return fmt.Errorf("update reservation %s: %w", res.ID, err)
		}
		if err := tx.ReservationEdit.Create(ctx, edit); err != nil {
			return fmt.Errorf("record edit for reservation %s: %w", res.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Reservation edited",
		zap.String("reservation_id", reservationID),
		zap.String("check_in", utils.FormatDate(checkIn)),
		zap.String("check_out", utils.FormatDate(checkOut)),
		zap.Int64("previous_total", edit.PreviousTotal),
		zap.Int64("new_total", edit.NewTotal),
	)
	s.publish(ctx, newEvent(EventReservationEdited, res))

	return &response.EditReservationResponse{
		Reservation:   response.ReservationToResponse(res, now),
		PreviousTotal: edit.PreviousTotal,
		NewTotal:      edit.NewTotal,
		Credit:        edit.Credit(),
	}, nil
}
