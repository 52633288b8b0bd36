package adaptor

import (
	"encoding/json"
	"net/http"

	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"go.uber.org/zap"
)

type PaymentHandler struct {
	baseHandler
	service usecase.PaymentService
}

func NewPaymentHandler(service usecase.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		baseHandler: baseHandler{log: log.With(zap.String("handler", "payment"))},
		service:     service,
	}
}

// CreateOrder handles POST /create-order (protected)
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userID.String(), &req)
	if err != nil {
		h.handleServiceError(w, err, "create order")
		return
	}

	utils.ResponseCreated(w, "Reservation held, complete payment before the hold expires", order)
}

// VerifyPayment handles POST /verify-payment (protected)
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), userID.String(), &req)
	if err != nil {
		h.handleServiceError(w, err, "verify payment")
		return
	}

	message := "Payment verified, reservation confirmed"
	if result.AlreadyConfirmed {
		message = "Reservation already confirmed"
	}
	utils.ResponseSuccess(w, message, result)
}
