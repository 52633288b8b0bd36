package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReservationEdit struct {
	BaseSimple
	ReservationID    uuid.UUID `db:"reservation_id"`
	EditedBy         uuid.UUID `db:"edited_by"`
	PreviousCheckIn  time.Time `db:"previous_check_in"`
	PreviousCheckOut time.Time `db:"previous_check_out"`
	NewCheckIn       time.Time `db:"new_check_in"`
	NewCheckOut      time.Time `db:"new_check_out"`
	PreviousTotal    int64     `db:"previous_total"`
	NewTotal         int64     `db:"new_total"`
}

// Credit is what the guest is owed after a cheaper edit.
func (e *ReservationEdit) Credit() int64 {
	if e.NewTotal >= e.PreviousTotal {
		return 0
	}
	return e.PreviousTotal - e.NewTotal
}
