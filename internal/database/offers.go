package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SeedOffers inserts catalog offers loaded from offers.yaml. Existing rows
// are left untouched so restarts do not reset interest counters.
func (s *Service) SeedOffers(ctx context.Context, seeds []models.OfferSeed) error {
	for _, seed := range seeds {
		expiresAt, err := time.Parse(time.RFC3339, seed.ExpiresAt)
		if err != nil {
			return fmt.Errorf("invalid expires_at for offer %s: %w", seed.Id, err)
		}

		_, err = s.db.ExecContext(ctx, queryInsertOffer,
			seed.Id, seed.Title, seed.ImageUrl, seed.Location,
			seed.Rating, seed.PricePerShare, seed.AnnualReturn, expiresAt)
		if err != nil {
			return fmt.Errorf("unable to seed offer %s: %w", seed.Id, err)
		}
	}

	zap.L().Info("Offer catalog seeded", zap.Int("count", len(seeds)))
	return nil
}

func (s *Service) GetOfferById(ctx context.Context, offerId string) (*models.Offer, error) {
	return scanOffer(s.db.QueryRowContext(ctx, queryGetOfferById, offerId))
}

func (s *Service) getOfferTx(ctx context.Context, tx *sql.Tx, offerId string) (*models.Offer, error) {
	return scanOffer(tx.QueryRowContext(ctx, queryGetOfferById, offerId))
}

// ListActiveOffers returns the investable catalog: active and unexpired.
func (s *Service) ListActiveOffers(ctx context.Context) ([]models.Offer, error) {
	rows, err := s.db.QueryContext(ctx, queryListActiveOffers)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var offers []models.Offer
	for rows.Next() {
		var offer models.Offer
		var ratingStr, priceStr, returnStr string
		var expiresAt sql.NullTime
		err := rows.Scan(&offer.Id, &offer.Title, &offer.ImageUrl, &offer.Location,
			&ratingStr, &priceStr, &returnStr, &offer.Active, &expiresAt,
			&offer.InterestCount, &offer.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		if expiresAt.Valid {
			offer.ExpiresAt = expiresAt.Time
		}
		if offer.Rating, err = decimal.NewFromString(ratingStr); err != nil {
			return nil, fmt.Errorf("failed to parse rating '%s': %w", ratingStr, err)
		}
		if offer.PricePerShare, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("failed to parse price_per_share '%s': %w", priceStr, err)
		}
		if offer.AnnualReturn, err = decimal.NewFromString(returnStr); err != nil {
			return nil, fmt.Errorf("failed to parse annual_return '%s': %w", returnStr, err)
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offer rows: %w", err)
	}
	return offers, nil
}

func scanOffer(row *sql.Row) (*models.Offer, error) {
	var offer models.Offer
	var ratingStr, priceStr, returnStr string
	var expiresAt sql.NullTime
	err := row.Scan(&offer.Id, &offer.Title, &offer.ImageUrl, &offer.Location,
		&ratingStr, &priceStr, &returnStr, &offer.Active, &expiresAt,
		&offer.InterestCount, &offer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: offer", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan offer: %w", err)
	}
	if expiresAt.Valid {
		offer.ExpiresAt = expiresAt.Time
	}

	if offer.Rating, err = decimal.NewFromString(ratingStr); err != nil {
		return nil, fmt.Errorf("failed to parse rating '%s': %w", ratingStr, err)
	}
	if offer.PricePerShare, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("failed to parse price_per_share '%s': %w", priceStr, err)
	}
	if offer.AnnualReturn, err = decimal.NewFromString(returnStr); err != nil {
		return nil, fmt.Errorf("failed to parse annual_return '%s': %w", returnStr, err)
	}
	return &offer, nil
}
