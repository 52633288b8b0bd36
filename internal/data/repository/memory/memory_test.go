package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func seedReservation(t *testing.T, repo *repository.Repository, listingID uuid.UUID, in, out string, status entity.ReservationStatus, hold time.Time) *entity.Reservation {
	t.Helper()
	res := &entity.Reservation{
		BaseNoDelete:  entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ListingID:     listingID,
		GuestID:       uuid.New(),
		CheckIn:       date(in),
		CheckOut:      date(out),
		TotalAmount:   1000,
		Currency:      "INR",
		Status:        status,
		HoldExpiresAt: hold,
	}
	require.NoError(t, repo.Reservation.Create(context.Background(), res))
	return res
}

func TestHasOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repository()
	listing := uuid.New()

	confirmed := seedReservation(t, repo, listing, "2026-06-10", "2026-06-12", entity.ReservationConfirmed, now)
	seedReservation(t, repo, listing, "2026-06-20", "2026-06-22", entity.ReservationPendingPayment, now.Add(10*time.Minute))
	seedReservation(t, repo, listing, "2026-07-01", "2026-07-05", entity.ReservationPendingPayment, now.Add(-time.Minute))
	seedReservation(t, repo, listing, "2026-07-10", "2026-07-12", entity.ReservationCancelled, now)

	cases := []struct {
		name    string
		in, out string
		exclude uuid.UUID
		want    bool
	}{
		{"overlaps confirmed", "2026-06-11", "2026-06-13", uuid.Nil, true},
		{"adjacent to confirmed", "2026-06-12", "2026-06-14", uuid.Nil, false},
		{"overlaps live hold", "2026-06-19", "2026-06-21", uuid.Nil, true},
		{"expired hold is free", "2026-07-02", "2026-07-03", uuid.Nil, false},
		{"cancelled is free", "2026-07-10", "2026-07-12", uuid.Nil, false},
		{"self excluded", "2026-06-10", "2026-06-12", confirmed.ID, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.Reservation.HasOverlap(ctx, listing, date(tc.in), date(tc.out), tc.exclude, now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	other, err := repo.Reservation.HasOverlap(ctx, uuid.New(), date("2026-06-10"), date("2026-06-12"), uuid.Nil, now)
	require.NoError(t, err)
	assert.False(t, other)
}

func TestUpdateStatus_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repository()
	res := seedReservation(t, repo, uuid.New(), "2026-06-10", "2026-06-12", entity.ReservationPendingPayment, now.Add(time.Minute))

	ok, err := repo.Reservation.UpdateStatus(ctx, res.ID, entity.ReservationPendingPayment, entity.ReservationConfirmed, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reservation.UpdateStatus(ctx, res.ID, entity.ReservationPendingPayment, entity.ReservationPaymentFailed, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Reservation.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repository()
	res := seedReservation(t, repo, uuid.New(), "2026-06-10", "2026-06-12", entity.ReservationConfirmed, now)

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(tx *repository.Repository) error {
		_, err := tx.Reservation.UpdateStatus(ctx, res.ID, entity.ReservationConfirmed, entity.ReservationCancelled, now)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Reservation.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationConfirmed, got.Status)
}

func TestWebhookEvents_InsertOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repository()

	ev := &entity.WebhookEvent{BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now}, EventID: "evt_1", Status: entity.WebhookReceived}
	inserted, err := repo.WebhookEvent.Insert(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.WebhookEvent.Insert(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, repo.WebhookEvent.MarkProcessed(ctx, "evt_1", now))
	require.NoError(t, repo.WebhookEvent.MarkFailed(ctx, "evt_1", "late failure"))

	got, err := repo.WebhookEvent.FindByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, entity.WebhookProcessed, got.Status)
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Repository()

	boom := errors.New("db down")
	store.Fail("Reservation.FindByID", boom)
	_, err := repo.Reservation.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, boom)

	store.Fail("Reservation.FindByID", nil)
	got, err := repo.Reservation.FindByID(ctx, uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByGuestID_Paginates(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repository()
	guest := uuid.New()

	for i, in := range []string{"2026-06-01", "2026-07-01", "2026-08-01"} {
		res := &entity.Reservation{
			BaseNoDelete: entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now.Add(time.Duration(i) * time.Second)},
			ListingID:    uuid.New(),
			GuestID:      guest,
			CheckIn:      date(in),
			CheckOut:     date(in).AddDate(0, 0, 2),
			Status:       entity.ReservationConfirmed,
		}
		require.NoError(t, repo.Reservation.Create(ctx, res))
	}

	first, err := repo.Reservation.FindByGuestID(ctx, guest, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, date("2026-08-01"), first[0].CheckIn)

	rest, err := repo.Reservation.FindByGuestID(ctx, guest, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	count, err := repo.Reservation.CountByGuestID(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
