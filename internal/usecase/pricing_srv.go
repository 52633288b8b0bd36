package usecase

import (
	"context"
	"fmt"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/dto/response"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PricingService interface {
	Quote(ctx context.Context, listingID string, req *request.QuoteRequest) (*response.PriceBreakdown, error)
}

type pricingService struct {
	repo     *repository.Repository
	currency string
	log      *zap.Logger
}

func NewPricingService(repo *repository.Repository, cfg utils.ReservationConfig, log *zap.Logger) PricingService {
	return &pricingService{
		repo:     repo,
		currency: cfg.Currency,
		log:      log.With(zap.String("service", "pricing")),
	}
}

func (s *pricingService) Quote(ctx context.Context, listingID string, req *request.QuoteRequest) (*response.PriceBreakdown, error) {
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

	return CalculatePrice(listing, checkIn, checkOut, guestCounts(req.GuestCounts), s.currency)
}

// CalculatePrice is pure: the same listing, dates and guests always give the
// same breakdown. Service fee and tax are basis points of the subtotal.
func CalculatePrice(listing *entity.Listing, checkIn, checkOut time.Time, guests entity.GuestCounts, fallbackCurrency string) (*response.PriceBreakdown, error) {
	nights := stayNights(checkIn, checkOut)
	if nights < 1 {
		return nil, validationError("check-out must be at least one night after check-in")
	}
	if guests.Adults < 1 {
		return nil, validationError("at least one adult is required")
	}
	if guests.Children < 0 || guests.Infants < 0 || guests.Pets < 0 {
		return nil, validationError("guest counts must not be negative")
	}
	if listing.MaxGuests > 0 && guests.Occupants() > listing.MaxGuests {
		return nil, validationError("listing allows at most %d guests, got %d", listing.MaxGuests, guests.Occupants())
	}
	if listing.PricePerNight < 0 || listing.CleaningFee < 0 || listing.ServiceFeeBps < 0 || listing.TaxBps < 0 {
		return nil, fmt.Errorf("listing %s has negative pricing fields", listing.ID)
	}

	subtotal := listing.PricePerNight * int64(nights)
	serviceFee := applyBps(subtotal, listing.ServiceFeeBps)
	tax := applyBps(subtotal, listing.TaxBps)

	currency := listing.Currency
	if currency == "" {
		currency = fallbackCurrency
	}

	return &response.PriceBreakdown{
		Nights:      nights,
		NightlyRate: listing.PricePerNight,
		Subtotal:    subtotal,
		CleaningFee: listing.CleaningFee,
		ServiceFee:  serviceFee,
		Tax:         tax,
		Total:       subtotal + listing.CleaningFee + serviceFee + tax,
		Currency:    currency,
	}, nil
}

// applyBps rounds half-up to the minor unit.
func applyBps(amount int64, bps int) int64 {
	return (amount*int64(bps) + 5000) / 10000
}

// stayNights counts calendar days; both dates are UTC midnights.
func stayNights(checkIn, checkOut time.Time) int {
	if !checkOut.After(checkIn) {
		return 0
	}
	return int(checkOut.Sub(checkIn).Hours() / 24)
}

func parseStay(checkInRaw, checkOutRaw string) (time.Time, time.Time, error) {
	checkIn, err := utils.ParseStayDate(checkInRaw)
	if err != nil {
		return time.Time{}, time.Time{}, validationError("checkIn: %v", err)
	}
	checkOut, err := utils.ParseStayDate(checkOutRaw)
	if err != nil {
		return time.Time{}, time.Time{}, validationError("checkOut: %v", err)
	}
	if !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, validationError("check-out must be after check-in")
	}
	return checkIn, checkOut, nil
}

func guestCounts(g request.GuestCounts) entity.GuestCounts {
	return entity.GuestCounts{
		Adults:   g.Adults,
		Children: g.Children,
		Infants:  g.Infants,
		Pets:     g.Pets,
	}
}
