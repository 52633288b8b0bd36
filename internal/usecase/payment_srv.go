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
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentService interface {
	CreateOrder(ctx context.Context, userID string, req *request.CreateOrderRequest) (*response.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, userID string, req *request.VerifyPaymentRequest) (*response.VerifyPaymentResponse, error)
}

type paymentService struct {
	*lifecycle
	availability AvailabilityService
	cfg          utils.ReservationConfig
	log          *zap.Logger
}

func NewPaymentService(lc *lifecycle, availability AvailabilityService, cfg utils.ReservationConfig, log *zap.Logger) PaymentService {
	return &paymentService{
		lifecycle:    lc,
		availability: availability,
		cfg:          cfg,
		log:          log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, userID string, req *request.CreateOrderRequest) (*response.CreateOrderResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateOrder", trace.WithAttributes(
		attribute.String("listing.id", req.ListingID),
	))
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create order validation failed", zap.Any("errors", errs))
		return nil, validationError("%s", utils.FormatValidationErrors(errs))
	}

	guestID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrUnauthenticated, userID)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return nil, validationError("invalid listing ID %s", req.ListingID)
	}

	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if checkIn.Before(utils.TruncateDay(now)) {
		return nil, validationError("check-in %s is in the past", utils.FormatDate(checkIn))
	}

	if err := s.requireVerifiedEmail(ctx, guestID); err != nil {
		return nil, err
	}

	listing, err := s.repo.Listing.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("find listing %s: %w", req.ListingID, err)
	}
	if listing == nil {
		return nil, notFound("listing", req.ListingID)
	}
	if listing.HostID == guestID {
		return nil, fmt.Errorf("%w: hosts cannot book their own listing", ErrForbidden)
	}

	guests := guestCounts(req.GuestCounts)
	price, err := CalculatePrice(listing, checkIn, checkOut, guests, s.cfg.Currency)
	if err != nil {
		return nil, err
	}

	// Fast path; the authoritative check repeats under the listing lock.
	available, err := s.availability.IsAvailable(ctx, listingID, checkIn, checkOut, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrConflict
	}

	reservationID := uuid.New()
	order, err := s.gw.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   price.Total,
		Currency: price.Currency,
		Receipt:  reservationID.String(),
		Notes: gateway.Notes{
			"reservation_id": reservationID.String(),
			"listing_id":     listingID.String(),
		},
	})
	if err != nil {
		s.log.Error("Gateway order creation failed",
			zap.Error(err),
			zap.String("listing_id", req.ListingID),
			zap.Int64("amount", price.Total),
		)
		return nil, gatewayError("create order", err)
	}

	now = s.now()
	reservation := &entity.Reservation{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        reservationID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		ListingID:     listingID,
		GuestID:       guestID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Guests:        guests,
		Message:       req.Message,
		TotalAmount:   price.Total,
		Currency:      price.Currency,
		Status:        entity.ReservationPendingPayment,
		HoldExpiresAt: now.Add(s.cfg.HoldWindow),
		CanEdit:       true,
	}
	paymentOrder := &entity.PaymentOrder{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ReservationID:  reservationID,
		GatewayOrderID: order.ID,
		Amount:         price.Total,
		Currency:       price.Currency,
		Status:         entity.PaymentOrderCreated,
	}

	err = s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		locked, err := tx.Listing.FindByIDForUpdate(ctx, listingID)
		if err != nil {
			return fmt.Errorf("lock listing %s: %w", listingID, err)
		}
		if locked == nil {
			return notFound("listing", listingID.String())
		}

		free, err := isAvailable(ctx, tx, listingID, checkIn, checkOut, uuid.Nil, now)
		if err != nil {
			return err
		}
		if !free {
			return ErrConflict
		}

		if err := tx.Reservation.Create(ctx, reservation); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		if err := tx.PaymentOrder.Create(ctx, paymentOrder); err != nil {
			return fmt.Errorf("create payment order: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// The unpaid gateway order simply expires on the provider side.
			s.log.Info("Lost booking race for listing",
				zap.String("listing_id", listingID.String()),
				zap.String("order_id", order.ID),
			)
		} else {
			s.log.Error("Failed to persist reservation", zap.Error(err), zap.String("order_id", order.ID))
		}
		return nil, err
	}

	s.log.Info("Reservation created",
		zap.String("reservation_id", reservationID.String()),
		zap.String("order_id", order.ID),
		zap.String("listing_id", listingID.String()),
		zap.Int("nights", price.Nights),
		zap.Int64("amount", price.Total),
	)
	s.publish(ctx, newEvent(EventReservationCreated, reservation))

	return &response.CreateOrderResponse{
		ReservationID: reservationID.String(),
		OrderID:       order.ID,
		Amount:        price.Total,
		Currency:      price.Currency,
		KeyID:         s.gw.KeyID(),
		HoldExpiresAt: reservation.HoldExpiresAt,
		Price:         *price,
	}, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, userID string, req *request.VerifyPaymentRequest) (*response.VerifyPaymentResponse, error) {
	ctx, span := tracer.Start(ctx, "payment.VerifyPayment", trace.WithAttributes(
		attribute.String("reservation.id", req.ReservationID),
	))
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Verify payment validation failed", zap.Any("errors", errs))
		return nil, validationError("%s", utils.FormatValidationErrors(errs))
	}

	guestID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrUnauthenticated, userID)
	}
	reservationID, err := uuid.Parse(req.ReservationID)
	if err != nil {
		return nil, validationError("invalid reservation ID %s", req.ReservationID)
	}

	res, err := s.repo.Reservation.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("find reservation %s: %w", req.ReservationID, err)
	}
	if res == nil {
		return nil, notFound("reservation", req.ReservationID)
	}
	if res.GuestID != guestID {
		return nil, ErrForbidden
	}

	order, err := s.repo.PaymentOrder.FindByReservationID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("find payment order for %s: %w", req.ReservationID, err)
	}
	if order == nil {
		return nil, notFound("payment order for reservation", req.ReservationID)
	}

	if !s.gw.VerifyPaymentSignature(order.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature) {
		s.log.Warn("Payment signature mismatch",
			zap.String("reservation_id", req.ReservationID),
			zap.String("order_id", order.GatewayOrderID),
			zap.String("payment_id", req.GatewayPaymentID),
		)
		return nil, ErrInvalidSignature
	}

	var (
		confirmed *entity.Reservation
		already   bool
	)
	now := s.now()
	signature := req.GatewaySignature
	err = s.repo.WithinTx(ctx, func(tx *repository.Repository) error {
		var err error
		confirmed, already, err = s.confirm(ctx, tx, reservationID, req.GatewayPaymentID, &signature, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if already {
		s.log.Info("Payment already confirmed",
			zap.String("reservation_id", req.ReservationID),
			zap.String("payment_id", req.GatewayPaymentID),
		)
	} else {
		s.log.Info("Payment verified",
			zap.String("reservation_id", req.ReservationID),
			zap.String("payment_id", req.GatewayPaymentID),
		)
		s.publish(ctx, newEvent(EventReservationConfirmed, confirmed))
	}

	return &response.VerifyPaymentResponse{
		Reservation:      response.ReservationToResponse(confirmed, s.now()),
		AlreadyConfirmed: already,
	}, nil
}

// requireVerifiedEmail asks the identity collaborator, here the users table.
func (s *paymentService) requireVerifiedEmail(ctx context.Context, userID uuid.UUID) error {
	user, err := s.repo.User.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", userID, err)
	}
	if user == nil || !user.IsActive {
		return fmt.Errorf("%w: user %s not found", ErrUnauthenticated, userID)
	}
	if !user.EmailVerified {
		return ErrEmailNotVerified
	}
	return nil
}
