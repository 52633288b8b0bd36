package wire

import (
	"stay-reservations/internal/adaptor"
	"stay-reservations/internal/data/repository"
	"stay-reservations/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		// POST /create-order - hold dates and open a gateway order
		r.Post("/create-order", paymentHandler.CreateOrder)

		// POST /verify-payment - confirm with the client-side payment signature
		r.Post("/verify-payment", paymentHandler.VerifyPayment)
	})
}
