package usecase

import (
	"context"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/dto/request"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCalculatePrice(t *testing.T) {
	listing := &entity.Listing{
		PricePerNight: 2500,
		CleaningFee:   500,
		ServiceFeeBps: 1400,
		TaxBps:        1200,
		Currency:      "INR",
		MaxGuests:     4,
	}

	price, err := CalculatePrice(listing, day("2026-06-10"), day("2026-06-13"), entity.GuestCounts{Adults: 2, Children: 1}, "USD")
	require.NoError(t, err)

	assert.Equal(t, 3, price.Nights)
	assert.Equal(t, int64(7500), price.Subtotal)
	assert.Equal(t, int64(500), price.CleaningFee)
	assert.Equal(t, int64(1050), price.ServiceFee)
	assert.Equal(t, int64(900), price.Tax)
	assert.Equal(t, int64(9950), price.Total)
	assert.Equal(t, "INR", price.Currency)
}

func TestCalculatePrice_FallbackCurrency(t *testing.T) {
	listing := &entity.Listing{PricePerNight: 1000}

	price, err := CalculatePrice(listing, day("2026-06-10"), day("2026-06-11"), entity.GuestCounts{Adults: 1}, "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", price.Currency)
	assert.Equal(t, int64(1000), price.Total)
}

func TestCalculatePrice_Rejects(t *testing.T) {
	listing := &entity.Listing{PricePerNight: 1000, MaxGuests: 2}

	cases := []struct {
		name    string
		in, out string
		guests  entity.GuestCounts
	}{
		{"zero nights", "2026-06-10", "2026-06-10", entity.GuestCounts{Adults: 1}},
		{"no adults", "2026-06-10", "2026-06-12", entity.GuestCounts{Children: 2}},
		{"negative children", "2026-06-10", "2026-06-12", entity.GuestCounts{Adults: 1, Children: -1}},
		{"over capacity", "2026-06-10", "2026-06-12", entity.GuestCounts{Adults: 2, Children: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculatePrice(listing, day(tc.in), day(tc.out), tc.guests, "INR")
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCalculatePrice_InfantsAndPetsDoNotCount(t *testing.T) {
	listing := &entity.Listing{PricePerNight: 1000, MaxGuests: 2}

	_, err := CalculatePrice(listing, day("2026-06-10"), day("2026-06-12"), entity.GuestCounts{Adults: 2, Infants: 1, Pets: 2}, "INR")
	assert.NoError(t, err)
}

func TestApplyBps_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(1), applyBps(100, 50))
	assert.Equal(t, int64(0), applyBps(100, 49))
	assert.Equal(t, int64(125), applyBps(1001, 1250))
	assert.Equal(t, int64(0), applyBps(0, 1500))
}

func TestPricingService_Quote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, err := f.svc.Pricing.Quote(ctx, f.listing.ID.String(), &request.QuoteRequest{
		CheckIn:     "2026-06-10",
		CheckOut:    "2026-06-12",
		GuestCounts: request.GuestCounts{Adults: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), price.Total)

	_, err = f.svc.Pricing.Quote(ctx, uuid.NewString(), &request.QuoteRequest{
		CheckIn:     "2026-06-10",
		CheckOut:    "2026-06-12",
		GuestCounts: request.GuestCounts{Adults: 2},
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Pricing.Quote(ctx, f.listing.ID.String(), &request.QuoteRequest{
		CheckIn:     "10/06/2026",
		CheckOut:    "2026-06-12",
		GuestCounts: request.GuestCounts{Adults: 2},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAvailabilityService_CheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "2026-06-10", "2026-06-12")

	taken, err := f.svc.Availability.CheckAvailability(ctx, f.listing.ID.String(), &request.AvailabilityRequest{
		CheckIn: "2026-06-11", CheckOut: "2026-06-13",
	})
	require.NoError(t, err)
	assert.False(t, taken.Available)

	adjacent, err := f.svc.Availability.CheckAvailability(ctx, f.listing.ID.String(), &request.AvailabilityRequest{
		CheckIn: "2026-06-12", CheckOut: "2026-06-14",
	})
	require.NoError(t, err)
	assert.True(t, adjacent.Available)
}
