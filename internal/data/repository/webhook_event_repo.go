package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stay-reservations/internal/data/entity"
	"stay-reservations/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// WebhookEventRepository is the idempotency ledger for gateway events.
type WebhookEventRepository interface {
	// Insert records a newly seen event; it returns false when event_id already exists.
	Insert(ctx context.Context, event *entity.WebhookEvent) (bool, error)
	FindByEventID(ctx context.Context, eventID string) (*entity.WebhookEvent, error)
	FindByEventIDForUpdate(ctx context.Context, eventID string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, reason string) error
}

type webhookEventRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewWebhookEventRepository(db database.Querier, log *zap.Logger) WebhookEventRepository {
	return &webhookEventRepository{
		db:  db,
		log: log.With(zap.String("repository", "webhook_event")),
	}
}

func (r *webhookEventRepository) Insert(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (id, event_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		event.ID,
		event.EventID,
		event.EventType,
		event.Payload,
		event.Status,
		event.Attempts,
		event.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to insert webhook event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
		return false, fmt.Errorf("insert webhook event %s: %w", event.EventID, err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *webhookEventRepository) FindByEventID(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, event_id, event_type, payload, status, attempts, last_error, processed_at, created_at
		FROM webhook_events
		WHERE event_id = $1
	`
	return r.findOne(ctx, query, eventID)
}

func (r *webhookEventRepository) FindByEventIDForUpdate(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, event_id, event_type, payload, status, attempts, last_error, processed_at, created_at
		FROM webhook_events
		WHERE event_id = $1
		FOR UPDATE
	`
	return r.findOne(ctx, query, eventID)
}

func (r *webhookEventRepository) findOne(ctx context.Context, query, eventID string) (*entity.WebhookEvent, error) {
	var event entity.WebhookEvent
	err := r.db.QueryRow(ctx, query, eventID).Scan(
		&event.ID,
		&event.EventID,
		&event.EventType,
		&event.Payload,
		&event.Status,
		&event.Attempts,
		&event.LastError,
		&event.ProcessedAt,
		&event.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find webhook event",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return nil, fmt.Errorf("find webhook event %s: %w", eventID, err)
	}

	return &event, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	query := `
		UPDATE webhook_events
		SET status = 'processed', processed_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE event_id = $1
	`

	if _, err := r.db.Exec(ctx, query, eventID, at); err != nil {
		r.log.Error("Failed to mark webhook event processed",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return fmt.Errorf("mark webhook event %s processed: %w", eventID, err)
	}

	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, reason string) error {
	query := `
		UPDATE webhook_events
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE event_id = $1 AND status <> 'processed'
	`

	if _, err := r.db.Exec(ctx, query, eventID, reason); err != nil {
		r.log.Error("Failed to mark webhook event failed",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return fmt.Errorf("mark webhook event %s failed: %w", eventID, err)
	}

	return nil
}
