package entity

import (
	"github.com/google/uuid"
)

// Listing is owned by the catalogue service; this module only reads it.
// Amounts are in minor currency units, fee rates in basis points.
type Listing struct {
	BaseNoDelete
	HostID        uuid.UUID          `db:"host_id"`
	Title         string             `db:"title"`
	PricePerNight int64              `db:"price_per_night"`
	CleaningFee   int64              `db:"cleaning_fee"`
	ServiceFeeBps int                `db:"service_fee_bps"`
	TaxBps        int                `db:"tax_bps"`
	Currency      string             `db:"currency"`
	MaxGuests     int                `db:"max_guests"`
	Policy        CancellationPolicy `db:"-"`
}
