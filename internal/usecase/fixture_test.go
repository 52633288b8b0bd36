package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/data/repository/memory"
	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/gateway"
	"stay-reservations/pkg/cache"
	"stay-reservations/pkg/messaging"
	"stay-reservations/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKeyID         = "rzp_test_key"
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *memory.Store
	repo   *repository.Repository
	gw     *gateway.Mock
	events *messaging.Recorder
	dedup  *cache.MemoryDedup
	clock  *clock
	svc    *Service

	guest   uuid.UUID
	host    uuid.UUID
	listing entity.Listing
}

func testConfig() *utils.Config {
	return &utils.Config{
		Reservation: utils.ReservationConfig{
			Currency:        "INR",
			HoldWindow:      15 * time.Minute,
			EditWindowHours: utils.MinEditWindowHours,
		},
	}
}

// newFixture seeds a verified guest, a host and a moderate-policy listing at
// 1000 per night with no fees.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  memory.NewStore(),
		gw:     gateway.NewMock(testKeyID, testKeySecret, testWebhookSecret),
		events: &messaging.Recorder{},
		dedup:  cache.NewMemoryDedup(),
		clock:  &clock{t: start},
		guest:  uuid.New(),
		host:   uuid.New(),
	}
	f.repo = f.store.Repository()

	f.store.PutUser(entity.User{
		Base:          entity.Base{ID: f.guest},
		Username:      "guest",
		Email:         "guest@example.com",
		EmailVerified: true,
		IsActive:      true,
	})
	f.store.PutUser(entity.User{
		Base:          entity.Base{ID: f.host},
		Username:      "host",
		Email:         "host@example.com",
		EmailVerified: true,
		IsActive:      true,
	})

	policy, ok := entity.DefaultPolicy(entity.PolicyModerate)
	require.True(t, ok)
	f.listing = entity.Listing{
		BaseNoDelete:  entity.BaseNoDelete{ID: uuid.New()},
		HostID:        f.host,
		Title:         "Lake cabin",
		PricePerNight: 1000,
		Currency:      "INR",
		MaxGuests:     4,
		Policy:        policy,
	}
	f.store.PutListing(f.listing)

	f.svc = NewService(f.repo, Deps{
		Gateway: f.gw,
		Events:  f.events,
		Dedup:   f.dedup,
		Now:     f.clock.Now,
	}, testConfig(), zap.NewNop())

	return f
}

func (f *fixture) newLifecycle() *lifecycle {
	return &lifecycle{
		repo:   f.repo,
		gw:     f.gw,
		events: f.events,
		now:    f.clock.Now,
		log:    zap.NewNop(),
	}
}

func (f *fixture) orderRequest(in, out string) *request.CreateOrderRequest {
	return &request.CreateOrderRequest{
		ListingID:   f.listing.ID.String(),
		CheckIn:     in,
		CheckOut:    out,
		GuestCounts: request.GuestCounts{Adults: 2},
	}
}

// book creates an order and verifies its payment through the service.
func (f *fixture) book(t *testing.T, in, out string) *entity.Reservation {
	t.Helper()
	ctx := context.Background()

	order, err := f.svc.Payment.CreateOrder(ctx, f.guest.String(), f.orderRequest(in, out))
	require.NoError(t, err)

	paymentID := "pay_" + order.ReservationID[:8]
	_, err = f.svc.Payment.VerifyPayment(ctx, f.guest.String(), &request.VerifyPaymentRequest{
		ReservationID:    order.ReservationID,
		GatewayPaymentID: paymentID,
		GatewaySignature: gateway.SignPayment(testKeySecret, order.OrderID, paymentID),
	})
	require.NoError(t, err)

	return f.reservation(t, uuid.MustParse(order.ReservationID))
}

// seedConfirmed stores a paid reservation directly, for check-in times that
// are not calendar days.
func (f *fixture) seedConfirmed(t *testing.T, checkIn time.Time, nights int) *entity.Reservation {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	res := &entity.Reservation{
		BaseNoDelete:  entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ListingID:     f.listing.ID,
		GuestID:       f.guest,
		CheckIn:       checkIn,
		CheckOut:      checkIn.Add(time.Duration(nights) * 24 * time.Hour),
		Guests:        entity.GuestCounts{Adults: 2},
		TotalAmount:   f.listing.PricePerNight * int64(nights),
		Currency:      "INR",
		Status:        entity.ReservationConfirmed,
		HoldExpiresAt: now.Add(15 * time.Minute),
		ConfirmedAt:   &now,
		CanEdit:       true,
	}
	require.NoError(t, f.repo.Reservation.Create(ctx, res))

	paymentID := "pay_" + res.ID.String()[:8]
	require.NoError(t, f.repo.PaymentOrder.Create(ctx, &entity.PaymentOrder{
		BaseNoDelete:     entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ReservationID:    res.ID,
		GatewayOrderID:   "order_" + res.ID.String()[:8],
		Amount:           res.TotalAmount,
		Currency:         "INR",
		Status:           entity.PaymentOrderPaid,
		GatewayPaymentID: &paymentID,
	}))
	return res
}

func (f *fixture) reservation(t *testing.T, id uuid.UUID) *entity.Reservation {
	t.Helper()
	res, err := f.repo.Reservation.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func (f *fixture) order(t *testing.T, reservationID uuid.UUID) *entity.PaymentOrder {
	t.Helper()
	order, err := f.repo.PaymentOrder.FindByReservationID(context.Background(), reservationID)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}
