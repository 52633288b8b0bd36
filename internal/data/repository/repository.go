package repository

import (
	"context"

	"stay-reservations/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TxRunner executes fn against a Repository bound to a single transaction.
// Returning an error from fn rolls the transaction back.
type TxRunner func(ctx context.Context, fn func(tx *Repository) error) error

type Repository struct {
	User            UserRepository
	Session         SessionRepository
	Listing         ListingRepository
	Reservation     ReservationRepository
	PaymentOrder    PaymentOrderRepository
	WebhookEvent    WebhookEventRepository
	ReservationEdit ReservationEditRepository

	// Tx is nil on a repository that is already inside a transaction.
	Tx TxRunner
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newRepository(db, log)
	repo.Tx = func(ctx context.Context, fn func(tx *Repository) error) error {
		return database.InTx(ctx, db, func(tx pgx.Tx) error {
			return fn(newRepository(tx, log))
		})
	}
	return repo
}

func newRepository(q database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		User:            NewUserRepository(q, log),
		Session:         NewSessionRepository(q, log),
		Listing:         NewListingRepository(q, log),
		Reservation:     NewReservationRepository(q, log),
		PaymentOrder:    NewPaymentOrderRepository(q, log),
		WebhookEvent:    NewWebhookEventRepository(q, log),
		ReservationEdit: NewReservationEditRepository(q, log),
	}
}

// WithinTx runs fn in a transaction, or directly when r is already transactional.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.Tx == nil {
		return fn(r)
	}
	return r.Tx(ctx, fn)
}
