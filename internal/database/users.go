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

	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateUser inserts a new user with a zero balance and the given referral
// code (the code this user hands out to others).
func (s *Service) CreateUser(ctx context.Context, userId, name, email, referralCode string) (*models.User, error) {
	if userId == "" || name == "" || email == "" || referralCode == "" {
		return nil, fmt.Errorf("%w: user id, name, email and referral code are required", ErrInvalidRequest)
	}

	_, err := s.db.ExecContext(ctx, queryInsertUser, userId, name, email, referralCode)
	if err != nil {
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	zap.L().Info("User created", zap.String("id", userId), zap.String("name", name))
	return s.GetUserById(ctx, userId)
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId))
}

// GetUserByReferralCode resolves the referrer behind a presented code.
func (s *Service) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, queryGetUserByReferralCode, code))
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var users []models.User
	for rows.Next() {
		var user models.User
		var balanceStr, earningsStr string
		err := rows.Scan(&user.Id, &user.Name, &user.Email, &user.ReferralCode,
			&balanceStr, &earningsStr, &user.TotalReferrals, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		if user.Balance, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		if user.TotalEarnings, err = decimal.NewFromString(earningsStr); err != nil {
			return nil, fmt.Errorf("failed to parse total earnings '%s': %w", earningsStr, err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var balanceStr, earningsStr string
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.ReferralCode,
		&balanceStr, &earningsStr, &user.TotalReferrals, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan user: %w", err)
	}
	user.Active = true

	if user.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if user.TotalEarnings, err = decimal.NewFromString(earningsStr); err != nil {
		return nil, fmt.Errorf("failed to parse total earnings '%s': %w", earningsStr, err)
	}
	return &user, nil
}
