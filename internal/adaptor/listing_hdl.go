package adaptor

import (
	"encoding/json"
	"net/http"

	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ListingHandler struct {
	baseHandler
	availability usecase.AvailabilityService
	pricing      usecase.PricingService
}

func NewListingHandler(availability usecase.AvailabilityService, pricing usecase.PricingService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{
		baseHandler:  baseHandler{log: log.With(zap.String("handler", "listing"))},
		availability: availability,
		pricing:      pricing,
	}
}

// Availability handles GET /listings/{listingId}/availability (public)
func (h *ListingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := request.AvailabilityRequest{
		CheckIn:  query.Get("checkIn"),
		CheckOut: query.Get("checkOut"),
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.availability.CheckAvailability(r.Context(), chi.URLParam(r, "listingId"), &req)
	if err != nil {
		h.handleServiceError(w, err, "check availability")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Quote handles POST /listings/{listingId}/quote (public)
func (h *ListingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req request.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	price, err := h.pricing.Quote(r.Context(), chi.URLParam(r, "listingId"), &req)
	if err != nil {
		h.handleServiceError(w, err, "quote stay")
		return
	}

	utils.ResponseSuccess(w, "success", price)
}
