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

// CreateReferral links a referrer to a newly registered referee. The partial
// unique index on (referee, pending) rejects a second pending referral for
// the same referee.
func (s *Service) CreateReferral(ctx context.Context, referrerUserId, refereeUserId, code string, rewardAmount decimal.Decimal) (*models.Referral, error) {
	if referrerUserId == refereeUserId {
		return nil, fmt.Errorf("%w: a user cannot refer themselves", ErrInvalidRequest)
	}
	if rewardAmount.IsNegative() {
		return nil, fmt.Errorf("%w: reward amount cannot be negative", ErrInvalidAmount)
	}

	referralId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertReferral,
		referralId, referrerUserId, refereeUserId, code, rewardAmount.String(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("unable to insert referral: %w", err)
	}

	zap.L().Info("Referral created",
		zap.String("referral_id", referralId),
		zap.String("referrer", referrerUserId),
		zap.String("referee", refereeUserId))
	return s.GetReferralById(ctx, referralId)
}

// CompleteReferral transitions the referee's pending referral to completed.
// The guarded UPDATE is the exactly-once mechanism: however many concurrent
// callers race here, only one updates the row, and only that one increments
// the referrer's counter. No pending referral is a normal no-op, since most
// users are not referred.
func (s *Service) CompleteReferral(ctx context.Context, refereeUserId string, firstPurchaseAmount decimal.Decimal) (*models.Referral, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryCompleteReferral,
		time.Now(), firstPurchaseAmount.String(), refereeUserId)
	if err != nil {
		return nil, false, fmt.Errorf("failed to complete referral: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, false, nil
	}

	referral, err := scanReferral(tx.QueryRowContext(ctx, queryGetCompletedReferralByReferee, refereeUserId))
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, queryIncrementTotalReferrals, referral.ReferrerUserId); err != nil {
		return nil, false, fmt.Errorf("failed to increment referrer counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit referral completion: %w", err)
	}

	zap.L().Info("Referral completed",
		zap.String("referral_id", referral.Id),
		zap.String("referrer", referral.ReferrerUserId),
		zap.String("referee", refereeUserId),
		zap.String("first_purchase_amount", firstPurchaseAmount.String()))
	return referral, true, nil
}

// PayReferralReward credits the referrer's balance with the reward amount.
// The reward-paid flip and the credit commit together; the guarded UPDATE
// makes a second invocation fail with ErrAlreadyPaid instead of paying twice.
func (s *Service) PayReferralReward(ctx context.Context, referralId string) (*models.Referral, decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	referral, err := scanReferral(tx.QueryRowContext(ctx, queryGetReferralById, referralId))
	if err != nil {
		return nil, decimal.Zero, err
	}
	if referral.Status != models.ReferralStatusCompleted {
		return nil, decimal.Zero, fmt.Errorf("%w: referral %s is %s", ErrNotCompleted, referralId, referral.Status)
	}
	if referral.RewardPaid {
		return nil, decimal.Zero, fmt.Errorf("%w: referral %s", ErrAlreadyPaid, referralId)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, queryMarkRewardPaid, now, referralId)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to mark reward paid: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost a race with another payment call.
		return nil, decimal.Zero, fmt.Errorf("%w: referral %s", ErrAlreadyPaid, referralId)
	}

	newBalance, err := s.creditTx(ctx, tx, referral.ReferrerUserId, referral.RewardAmount, models.ReasonReferralReward, referralId)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to commit reward payment: %w", err)
	}

	zap.L().Info("Referral reward paid",
		zap.String("referral_id", referralId),
		zap.String("referrer", referral.ReferrerUserId),
		zap.String("amount", referral.RewardAmount.String()),
		zap.String("new_balance", newBalance.String()))

	referral.RewardPaid = true
	referral.RewardPaidDate = &now
	return referral, newBalance, nil
}

func (s *Service) GetReferralById(ctx context.Context, referralId string) (*models.Referral, error) {
	return scanReferral(s.db.QueryRowContext(ctx, queryGetReferralById, referralId))
}

func scanReferral(row *sql.Row) (*models.Referral, error) {
	var referral models.Referral
	var rewardStr, firstAmountStr string
	var rewardPaidDate, firstPurchaseDate sql.NullTime
	err := row.Scan(&referral.Id, &referral.ReferrerUserId, &referral.RefereeUserId,
		&referral.ReferralCode, &referral.Status, &rewardStr,
		&referral.RewardPaid, &rewardPaidDate, &firstPurchaseDate, &firstAmountStr,
		&referral.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: referral", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan referral: %w", err)
	}

	if rewardPaidDate.Valid {
		referral.RewardPaidDate = &rewardPaidDate.Time
	}
	if firstPurchaseDate.Valid {
		referral.FirstPurchaseDate = &firstPurchaseDate.Time
	}
	if referral.RewardAmount, err = decimal.NewFromString(rewardStr); err != nil {
		return nil, fmt.Errorf("failed to parse reward amount '%s': %w", rewardStr, err)
	}
	if referral.FirstPurchaseAmount, err = decimal.NewFromString(firstAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse first purchase amount '%s': %w", firstAmountStr, err)
	}
	return &referral, nil
}
