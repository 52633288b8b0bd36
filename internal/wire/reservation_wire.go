package wire

import (
	"stay-reservations/internal/adaptor"
	"stay-reservations/internal/data/repository"
	"stay-reservations/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireReservation(
	r chi.Router,
	reservationHandler *adaptor.ReservationHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		r.Get("/reservations", reservationHandler.ListReservations)
		r.Get("/reservations/{reservationId}", reservationHandler.GetReservation)

		// PUT /edit-reservation/{reservationId} - guest moves the stay dates
		r.Put("/edit-reservation/{reservationId}", reservationHandler.EditReservation)

		r.Post("/cancel-reservation/{reservationId}", reservationHandler.CancelReservation)
		r.Get("/refund-status/{reservationId}", reservationHandler.RefundStatus)
		r.Get("/cancellation-info/{reservationId}", reservationHandler.CancellationInfo)
	})
}
