package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_HoldsDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	assert.Equal(t, int64(2000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, testKeyID, order.KeyID)
	assert.Equal(t, start.Add(15*time.Minute), order.HoldExpiresAt)
	assert.NotEmpty(t, order.OrderID)

	res := f.reservation(t, uuid.MustParse(order.ReservationID))
	assert.Equal(t, entity.ReservationPendingPayment, res.Status)
	assert.True(t, res.CanEdit)

	po := f.order(t, res.ID)
	assert.Equal(t, order.OrderID, po.GatewayOrderID)
	assert.Equal(t, entity.PaymentOrderCreated, po.Status)

	assert.Equal(t, []string{EventReservationCreated}, f.events.Types())

	_, err = f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-11", "2026-06-13"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateOrder_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unverified := uuid.New()
	f.store.PutUser(entity.User{Base: entity.Base{ID: unverified}, IsActive: true})

	_, err := f.svc.Payment.CreateOrder(ctx, unverified.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Payment.CreateOrder(ctx, uuid.NewString(), f.orderRequest("2026-06-10", "2026-06-12"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.Payment.CreateOrder(ctx, f.host.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-04-20", "2026-04-22"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-12", "2026-06-10"))
	assert.ErrorIs(t, err, ErrValidation)

	req := f.orderRequest("2026-06-10", "2026-06-12")
	req.GuestCounts = request.GuestCounts{Adults: 4, Children: 1}
	_, err = f.svc.Payment.CreateOrder(ctx, f.guest.String(), req)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, f.gw.Calls("CreateOrder"))
}

func TestCreateOrder_GatewayFailureLeavesNoHold(t *testing.T) {
	f := newFixture(t)
	f.gw.CreateOrderErr = &gateway.APIError{StatusCode: 500, Code: "SERVER_ERROR", Description: "boom"}

	_, err := f.svc.Payment.CreateOrder(context.Background(), f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	assert.ErrorIs(t, err, ErrGateway)
	assert.Empty(t, f.store.Reservations(f.listing.ID))
}

func TestCreateOrder_ConcurrentRequestsForSameDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-13"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)
	assert.Len(t, f.store.Reservations(f.listing.ID), 1)
	assert.Len(t, f.store.PaymentOrders(), 1)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	req := &request.VerifyPaymentRequest{
		ReservationID:    order.ReservationID,
		GatewayPaymentID: "pay_001",
		GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, "pay_001"),
	}

	first, err := f.svc.Payment.VerifyPayment(ctx, f.guest.String(), req)
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)
	assert.Equal(t, entity.ReservationConfirmed, first.Reservation.Status)
	assert.Nil(t, first.Reservation.HoldExpiresAt)

	second, err := f.svc.Payment.VerifyPayment(ctx, f.guest.String(), req)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)

	po := f.order(t, uuid.MustParse(order.ReservationID))
	assert.Equal(t, entity.PaymentOrderPaid, po.Status)
	require.NotNil(t, po.GatewayPaymentID)
	assert.Equal(t, "pay_001", *po.GatewayPaymentID)

	assert.Equal(t, 1, f.events.Count(EventReservationConfirmed))
}

func TestVerifyPayment_InvalidSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	_, err = f.svc.Payment.VerifyPayment(ctx, f.guest.String(), &request.VerifyPaymentRequest{
		ReservationID:    order.ReservationID,
		GatewayPaymentID: "pay_001",
		GatewaySignature: gateway.SignPayment("wrong-secret", order.OrderID, "pay_001"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	res := f.reservation(t, uuid.MustParse(order.ReservationID))
	assert.Equal(t, entity.ReservationPendingPayment, res.Status)
	assert.Zero(t, f.events.Count(EventReservationConfirmed))
}

func TestVerifyPayment_OtherGuestForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	_, err = f.svc.Payment.VerifyPayment(ctx, uuid.NewString(), &request.VerifyPaymentRequest{
		ReservationID:    order.ReservationID,
		GatewayPaymentID: "pay_001",
		GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, "pay_001"),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyPayment_AfterHoldExpired(t *testing.T) {
	t.Run("dates still free", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
		require.NoError(t, err)
		f.clock.Advance(20 * time.Minute)

		resp, err := f.svc.Payment.VerifyPayment(ctx, f.guest.String(), &request.VerifyPaymentRequest{
			ReservationID:    order.ReservationID,
			GatewayPaymentID: "pay_late",
			GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, "pay_late"),
		})
		require.NoError(t, err)
		assert.Equal(t, entity.ReservationConfirmed, resp.Reservation.Status)
	})

	t.Run("dates taken by someone else", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
		require.NoError(t, err)
		f.clock.Advance(20 * time.Minute)

		f.book(t, "2026-06-11", "2026-06-12")

		_, err = f.svc.Payment.VerifyPayment(ctx, f.guest.String(), &request.VerifyPaymentRequest{
			ReservationID:    order.ReservationID,
			GatewayPaymentID: "pay_late",
			GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, "pay_late"),
		})
		assert.ErrorIs(t, err, ErrState)

		res := f.reservation(t, uuid.MustParse(order.ReservationID))
		assert.Equal(t, entity.ReservationPendingPayment, res.Status)
	})
}

func TestVerifyPayment_AfterPaymentFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest("2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	expired, err := f.svc.Maintenance.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	_, err = f.svc.Payment.VerifyPayment(ctx, f.guest.String(), &request.VerifyPaymentRequest{
		ReservationID:    order.ReservationID,
		GatewayPaymentID: "pay_late",
		GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, "pay_late"),
	})
	assert.ErrorIs(t, err, ErrState)
}
