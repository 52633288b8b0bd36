// Package memory is an in-process implementation of the repository
// interfaces. Transactions hold a store-wide lock and restore a snapshot
// on error, so it mirrors the row-lock semantics the services rely on.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/internal/data/repository"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	users        map[uuid.UUID]entity.User
	sessions     map[string]entity.Session
	listings     map[uuid.UUID]entity.Listing
	reservations map[uuid.UUID]entity.Reservation
	orders       map[uuid.UUID]entity.PaymentOrder
	events       map[string]entity.WebhookEvent
	edits        []entity.ReservationEdit

	faults map[string]error
}

func NewStore() *Store {
	return &Store{
		users:        make(map[uuid.UUID]entity.User),
		sessions:     make(map[string]entity.Session),
		listings:     make(map[uuid.UUID]entity.Listing),
		reservations: make(map[uuid.UUID]entity.Reservation),
		orders:       make(map[uuid.UUID]entity.PaymentOrder),
		events:       make(map[string]entity.WebhookEvent),
		faults:       make(map[string]error),
	}
}

// Repository returns a repository whose Tx runs against this store.
func (s *Store) Repository() *repository.Repository {
	repo := s.repository(false)
	repo.Tx = s.runTx
	return repo
}

func (s *Store) repository(inTx bool) *repository.Repository {
	b := base{s: s, inTx: inTx}
	return &repository.Repository{
		User:            userRepo{b},
		Session:         sessionRepo{b},
		Listing:         listingRepo{b},
		Reservation:     reservationRepo{b},
		PaymentOrder:    paymentOrderRepo{b},
		WebhookEvent:    webhookEventRepo{b},
		ReservationEdit: reservationEditRepo{b},
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(s.repository(true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Fail makes every call to op return err until cleared with a nil err.
// op is "<Repository>.<Method>", e.g. "Reservation.UpdateStatus".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Seeding helpers, used by tests and local runs.

func (s *Store) PutUser(u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) PutSession(sess entity.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token.String()] = sess
}

func (s *Store) PutListing(l entity.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = cloneListing(l)
}

func (s *Store) PutReservation(r entity.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = cloneReservation(r)
}

// Reservations returns every stored reservation for listingID.
func (s *Store) Reservations(listingID uuid.UUID) []entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Reservation
	for _, r := range s.reservations {
		if r.ListingID == listingID {
			out = append(out, cloneReservation(r))
		}
	}
	return out
}

func (s *Store) PaymentOrders() []entity.PaymentOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.PaymentOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

type snapshot struct {
	users        map[uuid.UUID]entity.User
	sessions     map[string]entity.Session
	listings     map[uuid.UUID]entity.Listing
	reservations map[uuid.UUID]entity.Reservation
	orders       map[uuid.UUID]entity.PaymentOrder
	events       map[string]entity.WebhookEvent
	edits        []entity.ReservationEdit
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:        make(map[uuid.UUID]entity.User, len(s.users)),
		sessions:     make(map[string]entity.Session, len(s.sessions)),
		listings:     make(map[uuid.UUID]entity.Listing, len(s.listings)),
		reservations: make(map[uuid.UUID]entity.Reservation, len(s.reservations)),
		orders:       make(map[uuid.UUID]entity.PaymentOrder, len(s.orders)),
		events:       make(map[string]entity.WebhookEvent, len(s.events)),
		edits:        append([]entity.ReservationEdit(nil), s.edits...),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.sessions {
		snap.sessions[k] = v
	}
	for k, v := range s.listings {
		snap.listings[k] = cloneListing(v)
	}
	for k, v := range s.reservations {
		snap.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.sessions = snap.sessions
	s.listings = snap.listings
	s.reservations = snap.reservations
	s.orders = snap.orders
	s.events = snap.events
	s.edits = snap.edits
}

func cloneListing(l entity.Listing) entity.Listing {
	l.Policy.Tiers = append([]entity.RefundTier(nil), l.Policy.Tiers...)
	return l
}

func cloneReservation(r entity.Reservation) entity.Reservation {
	if r.Cancellation != nil {
		c := *r.Cancellation
		r.Cancellation = &c
	}
	return r
}

type base struct {
	s    *Store
	inTx bool
}

// enter takes the store lock unless the caller already holds it via a
// transaction, and reports any injected fault for op.
func (b base) enter(op string) (func(), error) {
	unlock := func() {}
	if !b.inTx {
		b.s.mu.Lock()
		unlock = b.s.mu.Unlock
	}
	if err := b.s.faults[op]; err != nil {
		unlock()
		return func() {}, err
	}
	return unlock, nil
}

// ---------------- users & sessions ----------------

type userRepo struct{ base }

func (r userRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	done, err := r.enter("User.FindByID")
	if err != nil {
		return nil, err
	}
	defer done()

	u, ok := r.s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return &u, nil
}

type sessionRepo struct{ base }

func (r sessionRepo) FindValidSession(ctx context.Context, token string) (*entity.Session, error) {
	done, err := r.enter("Session.FindValidSession")
	if err != nil {
		return nil, err
	}
	defer done()

	sess, ok := r.s.sessions[token]
	if !ok || sess.RevokedAt != nil || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &sess, nil
}

func (r sessionRepo) CleanExpiredSessions(ctx context.Context) (int64, error) {
	done, err := r.enter("Session.CleanExpiredSessions")
	if err != nil {
		return 0, err
	}
	defer done()

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	var n int64
	for token, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(cutoff) {
			delete(r.s.sessions, token)
			n++
		}
	}
	return n, nil
}

// ---------------- listings ----------------

type listingRepo struct{ base }

func (r listingRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	done, err := r.enter("Listing.FindByID")
	if err != nil {
		return nil, err
	}
	defer done()

	l, ok := r.s.listings[id]
	if !ok {
		return nil, nil
	}
	l = cloneListing(l)
	return &l, nil
}

// The store lock already serializes transactions, so the row lock is implicit.
func (r listingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	return r.FindByID(ctx, id)
}

// ---------------- reservations ----------------

type reservationRepo struct{ base }

func (r reservationRepo) Create(ctx context.Context, res *entity.Reservation) error {
	done, err := r.enter("Reservation.Create")
	if err != nil {
		return err
	}
	defer done()

	r.s.reservations[res.ID] = cloneReservation(*res)
	return nil
}

func (r reservationRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Reservation, error) {
	done, err := r.enter("Reservation.FindByID")
	if err != nil {
		return nil, err
	}
	defer done()

	res, ok := r.s.reservations[id]
	if !ok {
		return nil, nil
	}
	res = cloneReservation(res)
	return &res, nil
}

func (r reservationRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Reservation, error) {
	return r.FindByID(ctx, id)
}

func (r reservationRepo) FindByRefundID(ctx context.Context, refundID string) (*entity.Reservation, error) {
	done, err := r.enter("Reservation.FindByRefundID")
	if err != nil {
		return nil, err
	}
	defer done()

	for _, res := range r.s.reservations {
		if res.Cancellation != nil && res.Cancellation.RefundID != nil && *res.Cancellation.RefundID == refundID {
			res = cloneReservation(res)
			return &res, nil
		}
	}
	return nil, nil
}

func (r reservationRepo) filter(keep func(entity.Reservation) bool, less func(a, b entity.Reservation) bool) []*entity.Reservation {
	var out []*entity.Reservation
	for _, res := range r.s.reservations {
		if keep(res) {
			c := cloneReservation(res)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(*out[i], *out[j]) })
	return out
}

func (r reservationRepo) FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Reservation, error) {
	done, err := r.enter("Reservation.FindByGuestID")
	if err != nil {
		return nil, err
	}
	defer done()

	all := r.filter(
		func(res entity.Reservation) bool { return res.GuestID == guestID },
		func(a, b entity.Reservation) bool {
			if !a.CheckIn.Equal(b.CheckIn) {
				return a.CheckIn.After(b.CheckIn)
			}
			return a.CreatedAt.After(b.CreatedAt)
		},
	)
	return page(all, limit, offset), nil
}

func (r reservationRepo) CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error) {
	done, err := r.enter("Reservation.CountByGuestID")
	if err != nil {
		return 0, err
	}
	defer done()

	var n int64
	for _, res := range r.s.reservations {
		if res.GuestID == guestID {
			n++
		}
	}
	return n, nil
}

func (r reservationRepo) Update(ctx context.Context, res *entity.Reservation) error {
	done, err := r.enter("Reservation.Update")
	if err != nil {
		return err
	}
	defer done()

	stored, ok := r.s.reservations[res.ID]
	if !ok {
		return errNotFound("reservation", res.ID.String())
	}

	stored.CheckIn = res.CheckIn
	stored.CheckOut = res.CheckOut
	stored.TotalAmount = res.TotalAmount
	stored.Status = res.Status
	stored.ConfirmedAt = res.ConfirmedAt
	stored.CanEdit = res.CanEdit
	stored.Cancellation = res.Cancellation
	stored.UpdatedAt = res.UpdatedAt
	r.s.reservations[res.ID] = cloneReservation(stored)
	return nil
}

func (r reservationRepo) HasOverlap(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time, excludeID uuid.UUID, now time.Time) (bool, error) {
	done, err := r.enter("Reservation.HasOverlap")
	if err != nil {
		return false, err
	}
	defer done()

	for _, res := range r.s.reservations {
		if res.ListingID != listingID || res.ID == excludeID {
			continue
		}
		if res.Blocks(now) && res.Overlaps(checkIn, checkOut) {
			return true, nil
		}
	}
	return false, nil
}

func (r reservationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.ReservationStatus, at time.Time) (bool, error) {
	done, err := r.enter("Reservation.UpdateStatus")
	if err != nil {
		return false, err
	}
	defer done()

	res, ok := r.s.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	if to == entity.ReservationConfirmed {
		res.ConfirmedAt = &at
	}
	res.UpdatedAt = at
	r.s.reservations[id] = res
	return true, nil
}

func (r reservationRepo) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error) {
	done, err := r.enter("Reservation.FindExpiredHolds")
	if err != nil {
		return nil, err
	}
	defer done()

	all := r.filter(
		func(res entity.Reservation) bool {
			return res.Status == entity.ReservationPendingPayment && !res.HoldExpiresAt.After(now)
		},
		func(a, b entity.Reservation) bool { return a.HoldExpiresAt.Before(b.HoldExpiresAt) },
	)
	return page(all, limit, 0), nil
}

func (r reservationRepo) FindRefundPending(ctx context.Context, limit int) ([]*entity.Reservation, error) {
	done, err := r.enter("Reservation.FindRefundPending")
	if err != nil {
		return nil, err
	}
	defer done()

	all := r.filter(
		func(res entity.Reservation) bool { return res.Status == entity.ReservationRefundPending },
		func(a, b entity.Reservation) bool {
			return a.Cancellation.CancelledAt.Before(b.Cancellation.CancelledAt)
		},
	)
	return page(all, limit, 0), nil
}

// ---------------- payment orders ----------------

type paymentOrderRepo struct{ base }

func (r paymentOrderRepo) Create(ctx context.Context, order *entity.PaymentOrder) error {
	done, err := r.enter("PaymentOrder.Create")
	if err != nil {
		return err
	}
	defer done()

	for _, o := range r.s.orders {
		if o.GatewayOrderID == order.GatewayOrderID || o.ReservationID == order.ReservationID {
			return errDuplicate("payment order", order.GatewayOrderID)
		}
	}
	r.s.orders[order.ID] = *order
	return nil
}

func (r paymentOrderRepo) find(match func(entity.PaymentOrder) bool) *entity.PaymentOrder {
	for _, o := range r.s.orders {
		if match(o) {
			return &o
		}
	}
	return nil
}

func (r paymentOrderRepo) FindByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.PaymentOrder, error) {
	done, err := r.enter("PaymentOrder.FindByReservationID")
	if err != nil {
		return nil, err
	}
	defer done()
	return r.find(func(o entity.PaymentOrder) bool { return o.ReservationID == reservationID }), nil
}

func (r paymentOrderRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentOrder, error) {
	done, err := r.enter("PaymentOrder.FindByGatewayOrderID")
	if err != nil {
		return nil, err
	}
	defer done()
	return r.find(func(o entity.PaymentOrder) bool { return o.GatewayOrderID == gatewayOrderID }), nil
}

func (r paymentOrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, signature *string, at time.Time) (bool, error) {
	done, err := r.enter("PaymentOrder.MarkPaid")
	if err != nil {
		return false, err
	}
	defer done()

	o, ok := r.s.orders[id]
	if !ok || o.Status != entity.PaymentOrderCreated {
		return false, nil
	}
	o.Status = entity.PaymentOrderPaid
	o.GatewayPaymentID = &paymentID
	if signature != nil {
		o.GatewaySignature = signature
	}
	o.UpdatedAt = at
	r.s.orders[id] = o
	return true, nil
}

func (r paymentOrderRepo) MarkFailed(ctx context.Context, id uuid.UUID, paymentID *string, at time.Time) (bool, error) {
	done, err := r.enter("PaymentOrder.MarkFailed")
	if err != nil {
		return false, err
	}
	defer done()

	o, ok := r.s.orders[id]
	if !ok || o.Status != entity.PaymentOrderCreated {
		return false, nil
	}
	o.Status = entity.PaymentOrderFailed
	if paymentID != nil {
		o.GatewayPaymentID = paymentID
	}
	o.UpdatedAt = at
	r.s.orders[id] = o
	return true, nil
}

// ---------------- webhook events ----------------

type webhookEventRepo struct{ base }

func (r webhookEventRepo) Insert(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	done, err := r.enter("WebhookEvent.Insert")
	if err != nil {
		return false, err
	}
	defer done()

	if _, exists := r.s.events[event.EventID]; exists {
		return false, nil
	}
	r.s.events[event.EventID] = *event
	return true, nil
}

func (r webhookEventRepo) FindByEventID(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	done, err := r.enter("WebhookEvent.FindByEventID")
	if err != nil {
		return nil, err
	}
	defer done()

	e, ok := r.s.events[eventID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r webhookEventRepo) FindByEventIDForUpdate(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	return r.FindByEventID(ctx, eventID)
}

func (r webhookEventRepo) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	done, err := r.enter("WebhookEvent.MarkProcessed")
	if err != nil {
		return err
	}
	defer done()

	e, ok := r.s.events[eventID]
	if !ok {
		return errNotFound("webhook event", eventID)
	}
	e.Status = entity.WebhookProcessed
	e.ProcessedAt = &at
	e.Attempts++
	e.LastError = nil
	r.s.events[eventID] = e
	return nil
}

func (r webhookEventRepo) MarkFailed(ctx context.Context, eventID string, reason string) error {
	done, err := r.enter("WebhookEvent.MarkFailed")
	if err != nil {
		return err
	}
	defer done()

	e, ok := r.s.events[eventID]
	if !ok || e.Status == entity.WebhookProcessed {
		return nil
	}
	e.Status = entity.WebhookFailed
	e.Attempts++
	e.LastError = &reason
	r.s.events[eventID] = e
	return nil
}

// ---------------- reservation edits ----------------

type reservationEditRepo struct{ base }

func (r reservationEditRepo) Create(ctx context.Context, edit *entity.ReservationEdit) error {
	done, err := r.enter("ReservationEdit.Create")
	if err != nil {
		return err
	}
	defer done()

	r.s.edits = append(r.s.edits, *edit)
	return nil
}

func (r reservationEditRepo) FindByReservationID(ctx context.Context, reservationID uuid.UUID) ([]*entity.ReservationEdit, error) {
	done, err := r.enter("ReservationEdit.FindByReservationID")
	if err != nil {
		return nil, err
	}
	defer done()

	var out []*entity.ReservationEdit
	for _, e := range r.s.edits {
		if e.ReservationID == reservationID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
