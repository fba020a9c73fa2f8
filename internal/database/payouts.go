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

// CreatePayoutParams contains the parameters for opening a payout with its
// balance hold.
type CreatePayoutParams struct {
	UserId           string
	PayoutMethodId   string
	Amount           decimal.Decimal
	GatewayReference string
	ExpectedArrival  time.Time
}

// CreatePayoutWithHold debits the user's balance and creates the pending
// payout in one transaction. The debit is the atomic overdraft guard and it
// commits before the gateway is ever contacted; a failed debit aborts the
// whole request with ErrInsufficientBalance.
func (s *Service) CreatePayoutWithHold(ctx context.Context, params CreatePayoutParams) (*models.Payout, decimal.Decimal, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, fmt.Errorf("%w: payout amount must be positive", ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payoutId := uuid.New().String()
	newBalance, err := s.debitTx(ctx, tx, params.UserId, params.Amount, models.ReasonPayoutHold, payoutId)
	if err != nil {
		return nil, decimal.Zero, err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, queryInsertPayout,
		payoutId, params.UserId, params.PayoutMethodId, params.Amount.String(),
		string(models.PayoutStatusPending), params.GatewayReference, params.ExpectedArrival, now, now)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to insert payout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to commit payout hold: %w", err)
	}

	zap.L().Info("Payout created with balance hold",
		zap.String("payout_id", payoutId),
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()),
		zap.String("new_balance", newBalance.String()))

	payout, err := s.GetPayoutById(ctx, payoutId)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return payout, newBalance, nil
}

// ActivatePayout stores the gateway's reference once the transfer was
// accepted. Guarded on pending so a webhook that already resolved the payout
// is not overwritten.
func (s *Service) ActivatePayout(ctx context.Context, payoutId, gatewayReference string, status models.PayoutStatus) error {
	if status != models.PayoutStatusPending && status != models.PayoutStatusInTransit {
		return fmt.Errorf("%w: gateway acceptance cannot set status %s", ErrInvalidTransition, status)
	}

	result, err := s.db.ExecContext(ctx, queryActivatePayout, gatewayReference, string(status), payoutId)
	if err != nil {
		return fmt.Errorf("failed to activate payout: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Payout already resolved before gateway acceptance recorded",
			zap.String("payout_id", payoutId))
	}
	return nil
}

// MarkPayoutPaid finalizes a payout after a payout.paid event. Applying paid
// to an already-paid payout is a no-op; the returned flag reports whether
// this call changed anything.
func (s *Service) MarkPayoutPaid(ctx context.Context, gatewayReference string, arrival time.Time) (*models.Payout, bool, error) {
	payout, err := s.GetPayoutByGatewayRef(ctx, gatewayReference)
	if err != nil {
		return nil, false, err
	}

	result, err := s.db.ExecContext(ctx, queryMarkPayoutPaid, arrival, payout.Id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark payout paid: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return payout, false, nil
	}

	payout.Status = models.PayoutStatusPaid
	payout.ArrivalDate = &arrival
	return payout, true, nil
}

// FailPayoutWithCompensation transitions a payout to failed and credits the
// held amount back, in one transaction. The guarded UPDATE is checked first:
// if the payout is no longer pending/in_transit (redelivered event, or the
// webhook beat a synchronous failure path) no credit is issued, which is
// what keeps the compensation exactly-once.
func (s *Service) FailPayoutWithCompensation(ctx context.Context, payoutId, reason string) (*models.Payout, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payout, err := scanPayout(tx.QueryRowContext(ctx, queryGetPayoutById, payoutId))
	if err != nil {
		return nil, false, err
	}

	result, err := tx.ExecContext(ctx, queryMarkPayoutFailed, reason, payout.Id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark payout failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Payout already resolved, skipping compensation",
			zap.String("payout_id", payout.Id),
			zap.String("status", string(payout.Status)))
		return payout, false, nil
	}

	newBalance, err := s.creditTx(ctx, tx, payout.UserId, payout.Amount, models.ReasonPayoutReversal, payout.Id)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit payout failure: %w", err)
	}

	zap.L().Info("Payout failed, balance compensated",
		zap.String("payout_id", payout.Id),
		zap.String("user_id", payout.UserId),
		zap.String("amount", payout.Amount.String()),
		zap.String("reason", reason),
		zap.String("new_balance", newBalance.String()))

	payout.Status = models.PayoutStatusFailed
	payout.FailureReason = reason
	return payout, true, nil
}

// RecordCompensationFailure escalates an uncompensated debit to the manual
// intervention queue. An uncompensated debit is a data-integrity incident,
// never a silent warning.
func (s *Service) RecordCompensationFailure(ctx context.Context, payoutId, userId string, amount decimal.Decimal, lastError string) error {
	_, err := s.db.ExecContext(ctx, queryInsertCompensationFailure,
		uuid.New().String(), payoutId, userId, amount.String(), lastError)
	if err != nil {
		return fmt.Errorf("failed to record compensation failure: %w", err)
	}

	zap.L().Error("Compensating credit escalated to manual intervention",
		zap.String("payout_id", payoutId),
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("last_error", lastError))
	return nil
}

// ListCompensationFailures returns the manual-intervention queue, oldest first.
func (s *Service) ListCompensationFailures(ctx context.Context) ([]models.CompensationFailure, error) {
	rows, err := s.db.QueryContext(ctx, queryListCompensationFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to list compensation failures: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var failures []models.CompensationFailure
	for rows.Next() {
		var failure models.CompensationFailure
		var amountStr string
		err := rows.Scan(&failure.Id, &failure.PayoutId, &failure.UserId,
			&amountStr, &failure.LastError, &failure.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compensation failure: %w", err)
		}
		if failure.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		failures = append(failures, failure)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compensation failure rows: %w", err)
	}
	return failures, nil
}

func (s *Service) GetPayoutById(ctx context.Context, payoutId string) (*models.Payout, error) {
	return scanPayout(s.db.QueryRowContext(ctx, queryGetPayoutById, payoutId))
}

func (s *Service) GetPayoutByGatewayRef(ctx context.Context, gatewayReference string) (*models.Payout, error) {
	return scanPayout(s.db.QueryRowContext(ctx, queryGetPayoutByGatewayRef, gatewayReference))
}

func (s *Service) ListUserPayouts(ctx context.Context, userId string) ([]models.Payout, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserPayouts, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var payouts []models.Payout
	for rows.Next() {
		var payout models.Payout
		var amountStr string
		var arrival sql.NullTime
		err := rows.Scan(&payout.Id, &payout.UserId, &payout.PayoutMethodId,
			&amountStr, &payout.Status, &payout.GatewayReference,
			&arrival, &payout.FailureReason, &payout.CreatedAt, &payout.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		if arrival.Valid {
			payout.ArrivalDate = &arrival.Time
		}
		if payout.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		payouts = append(payouts, payout)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}

func scanPayout(row *sql.Row) (*models.Payout, error) {
	var payout models.Payout
	var amountStr string
	var arrival sql.NullTime
	err := row.Scan(&payout.Id, &payout.UserId, &payout.PayoutMethodId,
		&amountStr, &payout.Status, &payout.GatewayReference,
		&arrival, &payout.FailureReason, &payout.CreatedAt, &payout.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payout", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan payout: %w", err)
	}

	if arrival.Valid {
		payout.ArrivalDate = &arrival.Time
	}
	if payout.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return &payout, nil
}
