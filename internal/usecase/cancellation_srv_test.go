package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteRefund(t *testing.T) {
	policy, _ := entity.DefaultPolicy(entity.PolicyModerate)

	cases := []struct {
		name    string
		hours   float64
		pct     int
		amount  int64
		hasTier bool
	}{
		{"full refund window", 150, 100, 2000, true},
		{"exactly at threshold", 120, 100, 2000, true},
		{"partial window", 30, 50, 1000, true},
		{"too late", 10, 0, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checkIn := start.Add(time.Duration(tc.hours * float64(time.Hour)))
			q := QuoteRefund(policy, 2000, checkIn, start)
			assert.Equal(t, tc.pct, q.Percentage)
			assert.Equal(t, tc.amount, q.Amount)
			assert.Equal(t, tc.hasTier, q.Tier != nil)
			assert.InDelta(t, tc.hours, q.Hours, 0.001)
		})
	}
}

func TestRefundAmount_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(500), RefundAmount(999, 50))
	assert.Equal(t, int64(1), RefundAmount(1, 50))
	assert.Equal(t, int64(0), RefundAmount(1000, 0))
	assert.Equal(t, int64(0), RefundAmount(0, 100))
}

func TestCancelReservation_RefundTiers(t *testing.T) {
	cases := []struct {
		name         string
		hours        int
		amount       int64
		pct          int
		status       entity.ReservationStatus
		refundStatus entity.RefundStatus
		refunds      int
	}{
		{"150h before check-in", 150, 2000, 100, entity.ReservationRefundPending, entity.RefundInitiated, 1},
		{"30h before check-in", 30, 1000, 50, entity.ReservationRefundPending, entity.RefundInitiated, 1},
		{"10h before check-in", 10, 0, 0, entity.ReservationRefunded, entity.RefundNotRequired, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.seedConfirmed(t, start.Add(time.Duration(tc.hours)*time.Hour), 2)

			resp, err := f.svc.Cancellation.CancelReservation(context.Background(), f.guest.String(), res.ID.String(),
				&request.CancelReservationRequest{Reason: "change of plans"})
			require.NoError(t, err)

			assert.Equal(t, tc.amount, resp.RefundAmount)
			assert.Equal(t, tc.pct, resp.RefundPercentage)
			assert.Equal(t, tc.refundStatus, resp.RefundStatus)
			assert.Equal(t, tc.status, resp.Reservation.Status)
			assert.False(t, resp.Reservation.CanEdit)

			got := f.reservation(t, res.ID)
			require.NotNil(t, got.Cancellation)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, "change of plans", got.Cancellation.Reason)
			assert.Equal(t, f.guest, got.Cancellation.CancelledBy)
			assert.Equal(t, entity.PolicyModerate, got.Cancellation.PolicyType)

			assert.Len(t, f.gw.Refunds(), tc.refunds)
			if tc.refunds > 0 {
				assert.Equal(t, tc.amount, f.gw.Refunds()[0].Amount)
				assert.Equal(t, res.ID.String(), f.gw.Refunds()[0].Receipt)
			}

			assert.Equal(t, 1, f.events.Count(EventReservationCancelled))
		})
	}
}

func TestCancelReservation_FreesDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, "2026-06-10", "2026-06-12")

	_, err := f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	_, err = f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	assert.NoError(t, err)
}

func TestCancelReservation_Parties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stranger := f.seedConfirmed(t, start.Add(200*time.Hour), 2)
	_, err := f.svc.Cancellation.CancelReservation(ctx, uuid.NewString(), stranger.ID.String(), &request.CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrForbidden)

	resp, err := f.svc.Cancellation.CancelReservation(ctx, f.host.String(), stranger.ID.String(), &request.CancelReservationRequest{Reason: "maintenance"})
	require.NoError(t, err)
	assert.Equal(t, f.host.String(), resp.Reservation.Cancellation.CancelledBy)
}

func TestCancelReservation_InvalidStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.seedConfirmed(t, start.Add(200*time.Hour), 2)
	_, err := f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrState)

	order := f.pendingOrder(t)
	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), order.ReservationID, &request.CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrState)

	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), uuid.NewString(), &request.CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrNotFound)

	past := f.seedConfirmed(t, start.Add(-72*time.Hour), 2)
	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), past.ID.String(), &request.CancelReservationRequest{})
	assert.ErrorIs(t, err, ErrState)
}

func TestCancelReservation_GatewayDownKeepsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.seedConfirmed(t, start.Add(150*time.Hour), 2)

	f.gw.RefundErr = gateway.ErrUnavailable
	resp, err := f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationRefundPending, resp.Reservation.Status)
	assert.Equal(t, entity.RefundPending, resp.RefundStatus)

	got := f.reservation(t, res.ID)
	assert.Equal(t, 1, got.Cancellation.RefundAttempts)
	require.NotNil(t, got.Cancellation.LastRefundError)
	assert.Nil(t, got.Cancellation.RefundID)

	f.gw.RefundErr = nil
	_, err = f.svc.Maintenance.ReconcileRefunds(ctx)
	require.NoError(t, err)

	got = f.reservation(t, res.ID)
	assert.Equal(t, entity.RefundInitiated, got.Cancellation.RefundStatus)
	assert.Equal(t, 2, got.Cancellation.RefundAttempts)
	require.NotNil(t, got.Cancellation.RefundID)

	f.gw.SetRefundStatus(*got.Cancellation.RefundID, gateway.RefundStateProcessed)
	settled, err := f.svc.Maintenance.ReconcileRefunds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, entity.ReservationRefunded, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.events.Count(EventReservationRefunded))
}

func TestCheckRefundStatus_ReadsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.seedConfirmed(t, start.Add(150*time.Hour), 2)

	_, err := f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	status, err := f.svc.Cancellation.CheckRefundStatus(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)
	assert.False(t, status.Reconciled)
	assert.Equal(t, entity.RefundInitiated, status.RefundStatus)

	refundID := *f.reservation(t, res.ID).Cancellation.RefundID
	f.gw.SetRefundStatus(refundID, gateway.RefundStateProcessed)

	status, err = f.svc.Cancellation.CheckRefundStatus(ctx, f.host.String(), res.ID.String())
	require.NoError(t, err)
	assert.True(t, status.Reconciled)
	assert.Equal(t, entity.ReservationRefunded, status.Status)
	assert.Equal(t, entity.RefundCompleted, status.RefundStatus)
	assert.NotNil(t, status.RefundedAt)
}

func TestCheckRefundStatus_GatewayErrorServesLocalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.seedConfirmed(t, start.Add(150*time.Hour), 2)

	_, err := f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	f.gw.FetchRefundErr = errors.New("timeout")
	status, err := f.svc.Cancellation.CheckRefundStatus(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)
	assert.False(t, status.Reconciled)
	assert.Equal(t, entity.ReservationRefundPending, status.Status)

	notCancelled := f.seedConfirmed(t, start.Add(300*time.Hour), 1)
	_, err = f.svc.Cancellation.CheckRefundStatus(ctx, f.guest.String(), notCancelled.ID.String())
	assert.ErrorIs(t, err, ErrState)
}

func TestGetCancellationInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.seedConfirmed(t, start.Add(30*time.Hour), 2)

	info, err := f.svc.Cancellation.GetCancellationInfo(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)
	assert.True(t, info.Cancellable)
	assert.False(t, info.AlreadyCancelled)
	assert.Equal(t, 50, info.RefundPercentage)
	assert.Equal(t, int64(1000), info.RefundAmount)
	require.NotNil(t, info.ApplicableTier)
	assert.Equal(t, 24, info.ApplicableTier.HoursBeforeCheckIn)
	assert.Equal(t, entity.PolicyModerate, info.Policy.Type)

	// Nothing changed.
	assert.Equal(t, entity.ReservationConfirmed, f.reservation(t, res.ID).Status)

	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Hour)
	info, err = f.svc.Cancellation.GetCancellationInfo(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)
	assert.True(t, info.AlreadyCancelled)
	assert.False(t, info.Cancellable)
	assert.Equal(t, 50, info.RefundPercentage)
	assert.InDelta(t, 30, info.HoursBeforeCheckIn, 0.001)
}

func TestGetCancellationInfo_TiersFurthestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	policy, err := entity.NewPolicy(entity.PolicyModerate, []entity.RefundTier{
		{HoursBeforeCheckIn: 24, RefundPercentage: 50},
		{HoursBeforeCheckIn: 240, RefundPercentage: 100},
		{HoursBeforeCheckIn: 72, RefundPercentage: 75},
	})
	require.NoError(t, err)
	f.listing.Policy = policy
	f.store.PutListing(f.listing)

	res := f.seedConfirmed(t, start.Add(100*time.Hour), 2)

	info, err := f.svc.Cancellation.GetCancellationInfo(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)

	var thresholds []int
	for _, tier := range info.Policy.Tiers {
		thresholds = append(thresholds, tier.HoursBeforeCheckIn)
	}
	assert.Equal(t, []int{240, 72, 24}, thresholds)
	assert.Equal(t, 75, info.RefundPercentage)

	stored, err := f.repo.Listing.FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 24, stored.Policy.Tiers[0].HoursBeforeCheckIn, "listing policy is not reordered in place")

	_, err = f.svc.Cancellation.CancelReservation(ctx, f.guest.String(), res.ID.String(), &request.CancelReservationRequest{})
	require.NoError(t, err)

	info, err = f.svc.Cancellation.GetCancellationInfo(ctx, f.guest.String(), res.ID.String())
	require.NoError(t, err)
	require.True(t, info.AlreadyCancelled)
	assert.Equal(t, 240, info.Policy.Tiers[0].HoursBeforeCheckIn)
}
