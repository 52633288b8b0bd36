package usecase

import (
	"context"
	"fmt"
	"time"

	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/dto/response"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AvailabilityService interface {
	// IsAvailable reports false, not an error, when the range is taken.
	// excludeID may be uuid.Nil.
	IsAvailable(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID) (bool, error)
	CheckAvailability(ctx context.Context, listingID string, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error)
}

type availabilityService struct {
	repo *repository.Repository
	now  func() time.Time
	log  *zap.Logger
}

func NewAvailabilityService(repo *repository.Repository, now func() time.Time, log *zap.Logger) AvailabilityService {
	return &availabilityService{
		repo: repo,
		now:  now,
		log:  log.With(zap.String("service", "availability")),
	}
}

func (s *availabilityService) IsAvailable(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID) (bool, error) {
	return isAvailable(ctx, s.repo, listingID, checkIn, checkOut, excludeID, s.now())
}

func (s *availabilityService) CheckAvailability(ctx context.Context, listingID string, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationError("%s", utils.FormatValidationErrors(errs))
	}

	listingUUID, err := uuid.Parse(listingID)
	if err != nil {
		return nil, validationError("invalid listing ID %s", listingID)
	}

	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	listing, err := s.repo.Listing.FindByID(ctx, listingUUID)
	if err != nil {
		return nil, fmt.Errorf("find listing %s: %w", listingID, err)
	}
	if listing == nil {
		return nil, notFound("listing", listingID)
	}

	available, err := s.IsAvailable(ctx, listingUUID, checkIn, checkOut, uuid.Nil)
	if err != nil {
		return nil, err
	}

	return &response.AvailabilityResponse{
		ListingID: listingID,
		CheckIn:   utils.FormatDate(checkIn),
		CheckOut:  utils.FormatDate(checkOut),
		Available: available,
	}, nil
}

// isAvailable runs against whichever repository it is given, so the same
// check serves the fast path and the locked re-check inside a transaction.
func isAvailable(ctx context.Context, repo *repository.Repository, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID, now time.Time) (bool, error) {
	if !checkOut.After(checkIn) {
		return false, validationError("check-out must be after check-in")
	}

	overlap, err := repo.Reservation.HasOverlap(ctx, listingID, checkIn, checkOut, excludeID, now)
	if err != nil {
		return false, fmt.Errorf("check availability for listing %s: %w", listingID, err)
	}
	return !overlap, nil
}
