package request

type GuestCounts struct {
	Adults   int `json:"adults" validate:"required,min=1"`
	Children int `json:"children" validate:"min=0"`
	Infants  int `json:"infants" validate:"min=0"`
	Pets     int `json:"pets" validate:"min=0"`
}

// Dates are YYYY-MM-DD or RFC3339; parsing happens in the service.
type CreateOrderRequest struct {
	ListingID   string      `json:"listingId" validate:"required,uuid4"`
	CheckIn     string      `json:"checkIn" validate:"required"`
	CheckOut    string      `json:"checkOut" validate:"required"`
	GuestCounts GuestCounts `json:"guestCounts"`
	Message     *string     `json:"message,omitempty" validate:"omitempty,max=1000"`
}

type QuoteRequest struct {
	CheckIn     string      `json:"checkIn" validate:"required"`
	CheckOut    string      `json:"checkOut" validate:"required"`
	GuestCounts GuestCounts `json:"guestCounts"`
}

type AvailabilityRequest struct {
	CheckIn  string `json:"checkIn" validate:"required"`
	CheckOut string `json:"checkOut" validate:"required"`
}

type VerifyPaymentRequest struct {
	ReservationID    string `json:"reservationId" validate:"required,uuid4"`
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required"`
	GatewaySignature string `json:"gatewaySignature" validate:"required,hexadecimal"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type EditReservationRequest struct {
	CheckIn  string `json:"checkIn" validate:"required"`
	CheckOut string `json:"checkOut" validate:"required"`
}

// WebhookRequest carries the raw body untouched; signatures cover exact bytes.
type WebhookRequest struct {
	Body      []byte
	Signature string
	EventID   string
}
