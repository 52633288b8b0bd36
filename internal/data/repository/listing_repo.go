package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stay-reservations/internal/data/entity"
	"stay-reservations/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ListingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error)
	// FindByIDForUpdate locks the listing row until the transaction ends.
	// Reservation writes for one listing serialize on this lock.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Listing, error)
}

type listingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewListingRepository(db database.Querier, log *zap.Logger) ListingRepository {
	return &listingRepository{
		db:  db,
		log: log.With(zap.String("repository", "listing")),
	}
}

const listingColumns = `
	id, host_id, title, price_per_night, cleaning_fee, service_fee_bps, tax_bps,
	currency, max_guests, cancellation_policy, cancellation_tiers, created_at, updated_at`

func (r *listingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 AND deleted_at IS NULL`
	return r.findOne(ctx, query, id)
}

func (r *listingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *listingRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*entity.Listing, error) {
	var (
		listing    entity.Listing
		policyType string
		tiersRaw   []byte
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&listing.ID,
		&listing.HostID,
		&listing.Title,
		&listing.PricePerNight,
		&listing.CleaningFee,
		&listing.ServiceFeeBps,
		&listing.TaxBps,
		&listing.Currency,
		&listing.MaxGuests,
		&policyType,
		&tiersRaw,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find listing by ID",
			zap.Error(err),
			zap.String("listing_id", id.String()),
		)
		return nil, fmt.Errorf("find listing by ID %s: %w", id.String(), err)
	}

	var tiers []entity.RefundTier
	if len(tiersRaw) > 0 {
		if err := json.Unmarshal(tiersRaw, &tiers); err != nil {
			return nil, fmt.Errorf("decode cancellation tiers for listing %s: %w", id.String(), err)
		}
	}

	policy, err := entity.NewPolicy(entity.PolicyType(policyType), tiers)
	if err != nil {
		return nil, fmt.Errorf("listing %s policy: %w", id.String(), err)
	}
	listing.Policy = policy

	return &listing, nil
}
