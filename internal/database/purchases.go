/**
 * Copyright 2025-present Cask Ledger contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cask-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreatePurchaseParams contains the parameters for recording a new
// expression of interest.
type CreatePurchaseParams struct {
	UserId           string
	OfferId          string
	InvestmentAmount decimal.Decimal
	ContactMethod    string
	Actor            string
}

// CreatePurchase validates the target offer, snapshots its display fields
// onto the purchase, increments the offer's interest counter and appends the
// initial history entry, all in one transaction.
func (s *Service) CreatePurchase(ctx context.Context, params CreatePurchaseParams) (*models.Purchase, error) {
	if params.InvestmentAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: investment amount must be positive", ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	offer, err := s.getOfferTx(ctx, tx, params.OfferId)
	if err != nil {
		return nil, err
	}
	if !offer.Active || (!offer.ExpiresAt.IsZero() && offer.ExpiresAt.Before(time.Now())) {
		return nil, fmt.Errorf("%w: offer %s", ErrOfferUnavailable, offer.Id)
	}

	purchaseId := uuid.New().String()
	now := time.Now()

	_, err = tx.ExecContext(ctx, queryInsertPurchase,
		purchaseId, params.UserId, offer.Id, params.InvestmentAmount.String(),
		string(models.PurchaseStatusPending), params.ContactMethod,
		offer.Title, offer.ImageUrl, offer.Location, offer.Rating.String(), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	actor := params.Actor
	if actor == "" {
		actor = params.UserId
	}
	_, err = tx.ExecContext(ctx, queryInsertStatusHistory,
		purchaseId, string(models.PurchaseStatusPending), actor, "", now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert status history: %w", err)
	}

	if _, err = tx.ExecContext(ctx, queryIncrementOfferInterest, offer.Id); err != nil {
		return nil, fmt.Errorf("failed to increment offer interest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	zap.L().Info("Purchase created",
		zap.String("purchase_id", purchaseId),
		zap.String("user_id", params.UserId),
		zap.String("offer_id", offer.Id),
		zap.String("amount", params.InvestmentAmount.String()))

	return s.GetPurchaseById(ctx, purchaseId)
}

// TransitionPurchase moves a purchase to the next status. The transition
// table is enforced first, then the UPDATE is guarded on the current status
// so two concurrent admins cannot both win. A history entry is appended in
// the same transaction.
func (s *Service) TransitionPurchase(ctx context.Context, purchaseId string, next models.PurchaseStatus, actor, reason string) (*models.Purchase, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	purchase, err := scanPurchase(tx.QueryRowContext(ctx, queryGetPurchaseById, purchaseId))
	if err != nil {
		return nil, err
	}

	if !purchase.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, purchase.Status, next)
	}

	result, err := tx.ExecContext(ctx, queryUpdatePurchaseStatus,
		string(next), purchaseId, string(purchase.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Status changed underneath us between the read and the update.
		return nil, fmt.Errorf("%w: purchase %s changed concurrently", ErrInvalidTransition, purchaseId)
	}

	_, err = tx.ExecContext(ctx, queryInsertStatusHistory,
		purchaseId, string(next), actor, reason, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status transition: %w", err)
	}

	zap.L().Info("Purchase status changed",
		zap.String("purchase_id", purchaseId),
		zap.String("from", string(purchase.Status)),
		zap.String("to", string(next)),
		zap.String("actor", actor))

	purchase.Status = next
	return purchase, nil
}

func (s *Service) GetPurchaseById(ctx context.Context, purchaseId string) (*models.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx, queryGetPurchaseById, purchaseId))
}

func (s *Service) ListUserPurchases(ctx context.Context, userId string) ([]models.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserPurchases, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var purchases []models.Purchase
	for rows.Next() {
		purchase, err := scanPurchaseRows(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *purchase)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase rows: %w", err)
	}
	return purchases, nil
}

// GetStatusHistory returns the append-only status trail, oldest first.
func (s *Service) GetStatusHistory(ctx context.Context, purchaseId string) ([]models.PurchaseStatusChange, error) {
	rows, err := s.db.QueryContext(ctx, queryGetStatusHistory, purchaseId)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var history []models.PurchaseStatusChange
	for rows.Next() {
		var change models.PurchaseStatusChange
		err := rows.Scan(&change.Id, &change.PurchaseId, &change.Status,
			&change.Actor, &change.Reason, &change.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status history row: %w", err)
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return history, nil
}

// DeletePurchase removes a purchase for its owner. The WHERE clause limits
// deletion to Pending and Reject; Active and Completed purchases are
// immutable audit records.
func (s *Service) DeletePurchase(ctx context.Context, purchaseId, userId string) error {
	result, err := s.db.ExecContext(ctx, queryDeletePurchase, purchaseId, userId)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetPurchaseById(ctx, purchaseId); err != nil {
			return err
		}
		return fmt.Errorf("%w: purchase may only be deleted while Pending or Reject", ErrInvalidTransition)
	}

	zap.L().Info("Purchase deleted", zap.String("purchase_id", purchaseId), zap.String("user_id", userId))
	return nil
}

// AnnotatePurchase sets the free-text note. Notes remain editable after a
// purchase reaches a terminal status.
func (s *Service) AnnotatePurchase(ctx context.Context, purchaseId, note string) error {
	result, err := s.db.ExecContext(ctx, queryAnnotatePurchase, note, purchaseId)
	if err != nil {
		return fmt.Errorf("failed to annotate purchase: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: purchase %s", ErrNotFound, purchaseId)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row *sql.Row) (*models.Purchase, error) {
	purchase, err := scanPurchaseFrom(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: purchase", ErrNotFound)
	}
	return purchase, err
}

func scanPurchaseRows(rows *sql.Rows) (*models.Purchase, error) {
	return scanPurchaseFrom(rows)
}

func scanPurchaseFrom(scanner rowScanner) (*models.Purchase, error) {
	var purchase models.Purchase
	var amountStr, ratingStr string
	err := scanner.Scan(&purchase.Id, &purchase.UserId, &purchase.OfferId,
		&amountStr, &purchase.Status, &purchase.ContactMethod,
		&purchase.OfferTitle, &purchase.OfferImageUrl, &purchase.OfferLocation,
		&ratingStr, &purchase.Note, &purchase.SubmittedDate, &purchase.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}

	if purchase.InvestmentAmount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse investment amount '%s': %w", amountStr, err)
	}
	if purchase.OfferRating, err = decimal.NewFromString(ratingStr); err != nil {
		return nil, fmt.Errorf("failed to parse offer rating '%s': %w", ratingStr, err)
	}
	return &purchase, nil
}
