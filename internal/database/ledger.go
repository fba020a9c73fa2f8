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

// Credit atomically increments a user's balance and records an audit entry.
// Earnings-bearing reasons also increment total_earnings.
func (s *Service) Credit(ctx context.Context, userId string, amount decimal.Decimal, reason models.LedgerReason, reference string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: credit amount must be positive, got %s", ErrInvalidAmount, amount.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newBalance, err := s.creditTx(ctx, tx, userId, amount, reason, reference)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit credit: %w", err)
	}

	zap.L().Info("Balance credited",
		zap.String("user_id", userId),
		zap.String("reason", string(reason)),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()))
	return newBalance, nil
}

// Debit atomically decrements a user's balance. The balance check and the
// decrement are a single conditional UPDATE so concurrent debits can never
// overdraw the account.
func (s *Service) Debit(ctx context.Context, userId string, amount decimal.Decimal, reason models.LedgerReason, reference string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: debit amount must be positive, got %s", ErrInvalidAmount, amount.String())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newBalance, err := s.debitTx(ctx, tx, userId, amount, reason, reference)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit debit: %w", err)
	}

	zap.L().Info("Balance debited",
		zap.String("user_id", userId),
		zap.String("reason", string(reason)),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()))
	return newBalance, nil
}

// GetBalance returns the user's current balance and lifetime earnings.
func (s *Service) GetBalance(ctx context.Context, userId string) (decimal.Decimal, decimal.Decimal, error) {
	var balanceStr, earningsStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId).Scan(&balanceStr, &earningsStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: user %s", ErrNotFound, userId)
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	earnings, err := decimal.NewFromString(earningsStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse total earnings '%s': %w", earningsStr, err)
	}
	return balance, earnings, nil
}

// creditTx applies a credit inside an existing transaction so callers can
// combine it with a guarded state transition (reward payment, payout
// compensation) into one atomic unit.
func (s *Service) creditTx(ctx context.Context, tx *sql.Tx, userId string, amount decimal.Decimal, reason models.LedgerReason, reference string) (decimal.Decimal, error) {
	var result sql.Result
	var err error
	if reason.EarningsBearing() {
		result, err = tx.ExecContext(ctx, queryCreditBalanceWithEarnings, amount.String(), amount.String(), userId)
	} else {
		result, err = tx.ExecContext(ctx, queryCreditBalance, amount.String(), userId)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return decimal.Zero, fmt.Errorf("%w: user %s", ErrNotFound, userId)
	}

	newBalance, err := s.readBalanceTx(ctx, tx, userId)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.insertLedgerEntryTx(ctx, tx, models.LedgerEntry{
		UserId:        userId,
		EntryType:     models.EntryTypeCredit,
		Reason:        reason,
		Amount:        amount,
		BalanceBefore: newBalance.Sub(amount),
		BalanceAfter:  newBalance,
		Reference:     reference,
	}); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

// debitTx applies a debit inside an existing transaction. The conditional
// UPDATE affecting zero rows means the balance could not cover the amount.
func (s *Service) debitTx(ctx context.Context, tx *sql.Tx, userId string, amount decimal.Decimal, reason models.LedgerReason, reference string) (decimal.Decimal, error) {
	result, err := tx.ExecContext(ctx, queryDebitBalance, amount.String(), userId, amount.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing user from an uncovered debit.
		if _, err := s.readBalanceTx(ctx, tx, userId); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: user %s cannot cover %s", ErrInsufficientBalance, userId, amount.String())
	}

	newBalance, err := s.readBalanceTx(ctx, tx, userId)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.insertLedgerEntryTx(ctx, tx, models.LedgerEntry{
		UserId:        userId,
		EntryType:     models.EntryTypeDebit,
		Reason:        reason,
		Amount:        amount,
		BalanceBefore: newBalance.Add(amount),
		BalanceAfter:  newBalance,
		Reference:     reference,
	}); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

func (s *Service) readBalanceTx(ctx context.Context, tx *sql.Tx, userId string) (decimal.Decimal, error) {
	var balanceStr, earningsStr string
	err := tx.QueryRowContext(ctx, queryGetBalance, userId).Scan(&balanceStr, &earningsStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: user %s", ErrNotFound, userId)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return balance, nil
}

func (s *Service) insertLedgerEntryTx(ctx context.Context, tx *sql.Tx, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New().String(), entry.UserId, string(entry.EntryType), string(entry.Reason),
		entry.Amount.String(), entry.BalanceBefore.String(), entry.BalanceAfter.String(),
		entry.Reference, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntries returns the paginated audit trail for a user, newest first.
func (s *Service) GetLedgerEntries(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLedgerEntries, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var amountStr, beforeStr, afterStr string
		err := rows.Scan(&entry.Id, &entry.UserId, &entry.EntryType, &entry.Reason,
			&amountStr, &beforeStr, &afterStr, &entry.Reference, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		if entry.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance_before '%s': %w", beforeStr, err)
		}
		if entry.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance_after '%s': %w", afterStr, err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return entries, nil
}

// ReconcileBalance verifies that the stored balance equals the sum of the
// user's ledger entries.
func (s *Service) ReconcileBalance(ctx context.Context, userId string) error {
	zap.L().Info("Reconciling balance", zap.String("user_id", userId))

	currentBalance, _, err := s.GetBalance(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	var calculatedStr string
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, userId).Scan(&calculatedStr)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from ledger entries: %w", err)
	}

	calculatedBalance, err := decimal.NewFromString(calculatedStr)
	if err != nil {
		return fmt.Errorf("failed to parse calculated balance '%s': %w", calculatedStr, err)
	}

	if !currentBalance.Equal(calculatedBalance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculatedBalance.String()),
			zap.String("difference", currentBalance.Sub(calculatedBalance).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", currentBalance.String(), calculatedBalance.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance", currentBalance.String()))
	return nil
}
