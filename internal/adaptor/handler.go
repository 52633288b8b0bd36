package adaptor

import (
	"errors"
	"net/http"

	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Payment     *PaymentHandler
	Reservation *ReservationHandler
	Webhook     *WebhookHandler
	Listing     *ListingHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Payment:     NewPaymentHandler(service.Payment, log),
		Reservation: NewReservationHandler(service.Reservation, service.Cancellation, log),
		Webhook:     NewWebhookHandler(service.Webhook, log),
		Listing:     NewListingHandler(service.Availability, service.Pricing, log),
	}
}

type baseHandler struct {
	log *zap.Logger
}

// handleServiceError maps service error kinds to HTTP statuses. Order
// matters: an invalid signature is a gateway error but the caller's fault.
func (h baseHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	errMsg := err.Error()

	switch {
	case errors.Is(err, usecase.ErrInvalidSignature):
		h.log.Warn(operation+" failed - invalid signature",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, errMsg, nil)

	case errors.Is(err, usecase.ErrValidation):
		h.log.Warn(operation+" validation failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, errMsg, nil)

	case errors.Is(err, usecase.ErrUnauthenticated):
		h.log.Warn(operation+" failed - unauthenticated",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseUnauthorized(w, errMsg)

	case errors.Is(err, usecase.ErrForbidden):
		h.log.Warn(operation+" failed - forbidden",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseForbidden(w, errMsg)

	case errors.Is(err, usecase.ErrNotFound):
		h.log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, errMsg)

	case errors.Is(err, usecase.ErrConflict):
		h.log.Info(operation+" failed - dates unavailable",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, errMsg)

	case errors.Is(err, usecase.ErrState):
		h.log.Warn(operation+" failed - invalid state",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, errMsg)

	case errors.Is(err, usecase.ErrGateway):
		h.log.Error(operation+" failed - payment gateway",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadGateway(w, errMsg)

	default:
		h.log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
