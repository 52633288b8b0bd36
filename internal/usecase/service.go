package usecase

import (
	"time"

	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/gateway"
	"stay-reservations/pkg/cache"
	"stay-reservations/pkg/messaging"
	"stay-reservations/pkg/utils"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("stay-reservations/usecase")

// Deps are the collaborators outside the database.
type Deps struct {
	Gateway gateway.Gateway
	Events  messaging.Publisher
	Dedup   cache.Dedup
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type Service struct {
	Availability AvailabilityService
	Pricing      PricingService
	Payment      PaymentService
	Webhook      WebhookService
	Reservation  ReservationService
	Cancellation CancellationService
	Maintenance  MaintenanceService
}

func NewService(repo *repository.Repository, deps Deps, config *utils.Config, log *zap.Logger) *Service {
	if deps.Events == nil {
		deps.Events = messaging.NoopPublisher{}
	}
	if deps.Dedup == nil {
		deps.Dedup = cache.NoopDedup{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	lc := &lifecycle{
		repo:   repo,
		gw:     deps.Gateway,
		events: deps.Events,
		now:    deps.Now,
		log:    log.With(zap.String("service", "lifecycle")),
	}

	availability := NewAvailabilityService(repo, deps.Now, log)

	return &Service{
		Availability: availability,
		Pricing:      NewPricingService(repo, config.Reservation, log),
		Payment:      NewPaymentService(lc, availability, config.Reservation, log),
		Webhook:      NewWebhookService(lc, deps.Dedup, log),
		Reservation:  NewReservationService(lc, config.Reservation, log),
		Cancellation: NewCancellationService(lc, log),
		Maintenance:  NewMaintenanceService(lc, log),
	}
}
