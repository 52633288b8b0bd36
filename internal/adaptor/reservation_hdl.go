package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"stay-reservations/internal/dto/request"
	"stay-reservations/internal/usecase"
	"stay-reservations/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ReservationHandler struct {
	baseHandler
	reservations  usecase.ReservationService
	cancellations usecase.CancellationService
}

func NewReservationHandler(reservations usecase.ReservationService, cancellations usecase.CancellationService, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{
		baseHandler:   baseHandler{log: log.With(zap.String("handler", "reservation"))},
		reservations:  reservations,
		cancellations: cancellations,
	}
}

// GetReservation handles GET /reservations/{reservationId} (protected)
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	reservation, err := h.reservations.GetReservation(r.Context(), userID.String(), chi.URLParam(r, "reservationId"))
	if err != nil {
		h.handleServiceError(w, err, "get reservation")
		return
	}

	utils.ResponseSuccess(w, "success", reservation)
}

// ListReservations handles GET /reservations (protected)
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}

	reservations, err := h.reservations.ListReservations(r.Context(), userID.String(), req)
	if err != nil {
		h.handleServiceError(w, err, "list reservations")
		return
	}

	utils.ResponseSuccess(w, "success", reservations)
}

// EditReservation handles PUT /edit-reservation/{reservationId} (protected)
func (h *ReservationHandler) EditReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.EditReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.reservations.EditReservation(r.Context(), userID.String(), chi.URLParam(r, "reservationId"), &req)
	if err != nil {
		h.handleServiceError(w, err, "edit reservation")
		return
	}

	utils.ResponseSuccess(w, "Reservation dates updated", result)
}

// CancelReservation handles POST /cancel-reservation/{reservationId} (protected).
// The body is optional.
func (h *ReservationHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CancelReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.cancellations.CancelReservation(r.Context(), userID.String(), chi.URLParam(r, "reservationId"), &req)
	if err != nil {
		h.handleServiceError(w, err, "cancel reservation")
		return
	}

	utils.ResponseSuccess(w, "Reservation cancelled", result)
}

// RefundStatus handles GET /refund-status/{reservationId} (protected)
func (h *ReservationHandler) RefundStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.cancellations.CheckRefundStatus(r.Context(), userID.String(), chi.URLParam(r, "reservationId"))
	if err != nil {
		h.handleServiceError(w, err, "check refund status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// CancellationInfo handles GET /cancellation-info/{reservationId} (protected)
func (h *ReservationHandler) CancellationInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	info, err := h.cancellations.GetCancellationInfo(r.Context(), userID.String(), chi.URLParam(r, "reservationId"))
	if err != nil {
		h.handleServiceError(w, err, "get cancellation info")
		return
	}

	utils.ResponseSuccess(w, "success", info)
}
