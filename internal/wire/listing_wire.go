package wire

import (
	"stay-reservations/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireListing(r chi.Router, listingHandler *adaptor.ListingHandler) {
	r.Route("/listings/{listingId}", func(r chi.Router) {
		r.Get("/availability", listingHandler.Availability)
		r.Post("/quote", listingHandler.Quote)
	})
}
