package response

import (
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/pkg/utils"
)

type PriceBreakdown struct {
	Nights      int    `json:"nights"`
	NightlyRate int64  `json:"nightlyRate"`
	Subtotal    int64  `json:"subtotal"`
	CleaningFee int64  `json:"cleaningFee"`
	ServiceFee  int64  `json:"serviceFee"`
	Tax         int64  `json:"tax"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

type AvailabilityResponse struct {
	ListingID string `json:"listingId"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	Available bool   `json:"available"`
}

type CreateOrderResponse struct {
	ReservationID string         `json:"reservationId"`
	OrderID       string         `json:"orderId"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	KeyID         string         `json:"keyId"`
	HoldExpiresAt time.Time      `json:"holdExpiresAt"`
	Price         PriceBreakdown `json:"price"`
}

type CancellationResponse struct {
	Reason             string              `json:"reason,omitempty"`
	CancelledAt        time.Time           `json:"cancelledAt"`
	CancelledBy        string              `json:"cancelledBy"`
	PolicyType         entity.PolicyType   `json:"policyType"`
	HoursBeforeCheckIn float64             `json:"hoursBeforeCheckIn"`
	RefundPercentage   int                 `json:"refundPercentage"`
	RefundAmount       int64               `json:"refundAmount"`
	RefundStatus       entity.RefundStatus `json:"refundStatus"`
	RefundID           *string             `json:"refundId,omitempty"`
	RefundedAt         *time.Time          `json:"refundedAt,omitempty"`
}

type ReservationResponse struct {
	ID            string                   `json:"id"`
	ListingID     string                   `json:"listingId"`
	GuestID       string                   `json:"guestId"`
	CheckIn       string                   `json:"checkIn"`
	CheckOut      string                   `json:"checkOut"`
	Nights        int                      `json:"nights"`
	Guests        entity.GuestCounts       `json:"guestCounts"`
	Message       *string                  `json:"message,omitempty"`
	TotalAmount   int64                    `json:"totalAmount"`
	Currency      string                   `json:"currency"`
	Status        entity.ReservationStatus `json:"status"`
	HoldExpiresAt *time.Time               `json:"holdExpiresAt,omitempty"`
	ConfirmedAt   *time.Time               `json:"confirmedAt,omitempty"`
	CanEdit       bool                     `json:"canEdit"`
	Cancellation  *CancellationResponse    `json:"cancellation,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type VerifyPaymentResponse struct {
	Reservation      ReservationResponse `json:"reservation"`
	AlreadyConfirmed bool                `json:"alreadyConfirmed"`
}

type CancelReservationResponse struct {
	Reservation      ReservationResponse `json:"reservation"`
	RefundAmount     int64               `json:"refundAmount"`
	RefundPercentage int                 `json:"refundPercentage"`
	RefundStatus     entity.RefundStatus `json:"refundStatus"`
}

type EditReservationResponse struct {
	Reservation   ReservationResponse `json:"reservation"`
	PreviousTotal int64               `json:"previousTotal"`
	NewTotal      int64               `json:"newTotal"`
	Credit        int64               `json:"credit"`
}

type RefundStatusResponse struct {
	ReservationID    string                   `json:"reservationId"`
	Status           entity.ReservationStatus `json:"status"`
	RefundStatus     entity.RefundStatus      `json:"refundStatus"`
	RefundAmount     int64                    `json:"refundAmount"`
	RefundPercentage int                      `json:"refundPercentage"`
	RefundID         *string                  `json:"refundId,omitempty"`
	RefundedAt       *time.Time               `json:"refundedAt,omitempty"`
	Reconciled       bool                     `json:"reconciled"`
}

type CancellationInfoResponse struct {
	ReservationID      string                    `json:"reservationId"`
	Policy             entity.CancellationPolicy `json:"policy"`
	ApplicableTier     *entity.RefundTier        `json:"applicableTier"`
	RefundPercentage   int                       `json:"refundPercentage"`
	RefundAmount       int64                     `json:"refundAmount"`
	TotalAmount        int64                     `json:"totalAmount"`
	HoursBeforeCheckIn float64                   `json:"hoursBeforeCheckIn"`
	Cancellable        bool                      `json:"cancellable"`
	AlreadyCancelled   bool                      `json:"alreadyCancelled"`
}

type WebhookResponse struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

// ReservationToResponse reports the derived status at now, so a finished
// stay reads as completed.
func ReservationToResponse(r *entity.Reservation, now time.Time) ReservationResponse {
	resp := ReservationResponse{
		ID:          r.ID.String(),
		ListingID:   r.ListingID.String(),
		GuestID:     r.GuestID.String(),
		CheckIn:     utils.FormatDate(r.CheckIn),
		CheckOut:    utils.FormatDate(r.CheckOut),
		Nights:      r.Nights(),
		Guests:      r.Guests,
		Message:     r.Message,
		TotalAmount: r.TotalAmount,
		Currency:    r.Currency,
		Status:      r.EffectiveStatus(now),
		ConfirmedAt: r.ConfirmedAt,
		CanEdit:     r.CanEdit,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.Status == entity.ReservationPendingPayment {
		hold := r.HoldExpiresAt
		resp.HoldExpiresAt = &hold
	}

	if c := r.Cancellation; c != nil {
		resp.Cancellation = &CancellationResponse{
			Reason:             c.Reason,
			CancelledAt:        c.CancelledAt,
			CancelledBy:        c.CancelledBy.String(),
			PolicyType:         c.PolicyType,
			HoursBeforeCheckIn: c.HoursBeforeCheckIn,
			RefundPercentage:   c.RefundPercentage,
			RefundAmount:       c.RefundAmount,
			RefundStatus:       c.RefundStatus,
			RefundID:           c.RefundID,
			RefundedAt:         c.RefundedAt,
		}
	}

	return resp
}

type ReservationEditResponse struct {
	EditedBy         string    `json:"editedBy"`
	PreviousCheckIn  string    `json:"previousCheckIn"`
	PreviousCheckOut string    `json:"previousCheckOut"`
	NewCheckIn       string    `json:"newCheckIn"`
	NewCheckOut      string    `json:"newCheckOut"`
	PreviousTotal    int64     `json:"previousTotal"`
	NewTotal         int64     `json:"newTotal"`
	Credit           int64     `json:"credit"`
	EditedAt         time.Time `json:"editedAt"`
}

type ReservationDetailResponse struct {
	ReservationResponse
	Edits []ReservationEditResponse `json:"edits"`
}

func ReservationEditToResponse(e *entity.ReservationEdit) ReservationEditResponse {
	return ReservationEditResponse{
		EditedBy:         e.EditedBy.String(),
		PreviousCheckIn:  utils.FormatDate(e.PreviousCheckIn),
		PreviousCheckOut: utils.FormatDate(e.PreviousCheckOut),
		NewCheckIn:       utils.FormatDate(e.NewCheckIn),
		NewCheckOut:      utils.FormatDate(e.NewCheckOut),
		PreviousTotal:    e.PreviousTotal,
		NewTotal:         e.NewTotal,
		Credit:           e.Credit(),
		EditedAt:         e.CreatedAt,
	}
}
