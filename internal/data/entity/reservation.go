package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationPendingPayment ReservationStatus = "pending-payment"
	ReservationConfirmed      ReservationStatus = "confirmed"
	ReservationPaymentFailed  ReservationStatus = "payment-failed"
	ReservationCancelled      ReservationStatus = "cancelled"
	ReservationRefundPending  ReservationStatus = "refund-pending"
	ReservationRefunded       ReservationStatus = "refunded"
	ReservationCompleted      ReservationStatus = "completed"
)

var validNext = map[ReservationStatus]map[ReservationStatus]bool{
	ReservationPendingPayment: {ReservationConfirmed: true, ReservationPaymentFailed: true},
	ReservationConfirmed:      {ReservationCancelled: true, ReservationCompleted: true},
	ReservationCancelled:      {ReservationRefundPending: true, ReservationRefunded: true},
	ReservationRefundPending:  {ReservationRefunded: true},
	ReservationPaymentFailed:  {},
	ReservationRefunded:       {},
	ReservationCompleted:      {},
}

func CanTransition(from, to ReservationStatus) bool {
	return validNext[from][to]
}

func (s ReservationStatus) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

type RefundStatus string

const (
	RefundNone        RefundStatus = "none"
	RefundPending     RefundStatus = "pending"
	RefundInitiated   RefundStatus = "initiated"
	RefundCompleted   RefundStatus = "completed"
	RefundFailed      RefundStatus = "failed"
	RefundNotRequired RefundStatus = "not_required"
)

type GuestCounts struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
	Pets     int `json:"pets"`
}

// Occupants counts guests that take a bed; infants and pets are excluded.
func (g GuestCounts) Occupants() int {
	return g.Adults + g.Children
}

// Cancellation is recorded once, when a confirmed reservation is cancelled.
type Cancellation struct {
	Reason             string
	CancelledAt        time.Time
	CancelledBy        uuid.UUID
	PolicyType         PolicyType
	HoursBeforeCheckIn float64
	RefundPercentage   int
	RefundAmount       int64
	RefundStatus       RefundStatus
	RefundID           *string
	RefundedAt         *time.Time
	RefundAttempts     int
	LastRefundError    *string
}

type Reservation struct {
	BaseNoDelete
	ListingID     uuid.UUID         `db:"listing_id"`
	GuestID       uuid.UUID         `db:"guest_id"`
	CheckIn       time.Time         `db:"check_in"`
	CheckOut      time.Time         `db:"check_out"`
	Guests        GuestCounts       `db:"-"`
	Message       *string           `db:"message"`
	TotalAmount   int64             `db:"total_amount"`
	Currency      string            `db:"currency"`
	Status        ReservationStatus `db:"status"`
	HoldExpiresAt time.Time         `db:"hold_expires_at"`
	ConfirmedAt   *time.Time        `db:"confirmed_at"`
	CanEdit       bool              `db:"can_edit"`
	Cancellation  *Cancellation     `db:"-"`
}

func (r *Reservation) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Blocks reports whether the reservation still holds its dates at now.
func (r *Reservation) Blocks(now time.Time) bool {
	switch r.Status {
	case ReservationConfirmed:
		return true
	case ReservationPendingPayment:
		return r.HoldExpiresAt.After(now)
	default:
		return false
	}
}

// Overlaps uses half-open ranges, so a checkout day can be the next check-in.
func (r *Reservation) Overlaps(checkIn, checkOut time.Time) bool {
	return r.CheckIn.Before(checkOut) && checkIn.Before(r.CheckOut)
}

// EffectiveStatus derives completed for confirmed stays that have ended.
func (r *Reservation) EffectiveStatus(now time.Time) ReservationStatus {
	if r.Status == ReservationConfirmed && !r.CheckOut.After(now) {
		return ReservationCompleted
	}
	return r.Status
}

func (r *Reservation) HoursUntilCheckIn(now time.Time) float64 {
	return r.CheckIn.Sub(now).Hours()
}
