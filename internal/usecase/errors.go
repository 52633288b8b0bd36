package usecase

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Handlers map them to HTTP statuses
// with errors.Is; the wrapped message is what the client sees.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("listing is not available for the requested dates")
	ErrForbidden       = errors.New("not allowed to access this reservation")
	ErrNotFound        = errors.New("not found")
	ErrState           = errors.New("reservation is not in a valid state for this operation")
	ErrGateway         = errors.New("payment gateway error")
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrGateway)
	ErrEmailNotVerified = fmt.Errorf("%w: email is not verified", ErrForbidden)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func stateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s %w", kind, id, ErrNotFound)
}

func gatewayError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
}
