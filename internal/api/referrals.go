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

package api

import (
	"context"
	"fmt"
	"strings"

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterUser creates an account and, when a referral code is supplied,
// opens a pending referral against its owner. A bad code fails registration
// outright rather than silently dropping the referral.
func (s *LedgerService) RegisterUser(ctx context.Context, req models.RegisterUserRequest) (*models.User, error) {
	if req.Name == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", database.ErrInvalidRequest)
	}

	var referrer *models.User
	if req.ReferralCode != "" {
		var err error
		referrer, err = s.db.GetUserByReferralCode(ctx, strings.ToUpper(req.ReferralCode))
		if err != nil {
			return nil, fmt.Errorf("%w: unknown referral code", database.ErrInvalidRequest)
		}
	}

	userId := uuid.New().String()
	user, err := s.db.CreateUser(ctx, userId, req.Name, req.Email, newReferralCode())
	if err != nil {
		return nil, err
	}

	if referrer != nil {
		if _, err := s.db.CreateReferral(ctx, referrer.Id, user.Id, strings.ToUpper(req.ReferralCode), s.refCfg.DefaultRewardAmount); err != nil {
			zap.L().Error("Failed to create referral for new user",
				zap.String("user_id", user.Id),
				zap.String("referrer", referrer.Id),
				zap.Error(err))
			return nil, err
		}
	}

	return user, nil
}

// PayReferralReward pays out a completed referral to the referrer. Admin
// operation; the database layer enforces the exactly-once guarantee.
func (s *LedgerService) PayReferralReward(ctx context.Context, referralId string) (*models.Referral, error) {
	referral, newBalance, err := s.db.PayReferralReward(ctx, referralId)
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(notify.Event{
		Type:     "referral.reward_paid",
		UserId:   referral.ReferrerUserId,
		Title:    "Referral reward paid",
		Message:  fmt.Sprintf("Your referral reward of %s has been credited; new balance %s", referral.RewardAmount.String(), newBalance.String()),
		Priority: notify.PriorityHigh,
	})
	return referral, nil
}

// newReferralCode generates a short shareable code. Uniqueness is enforced
// by the database; collisions at 8 hex chars are rare enough that the insert
// error is an acceptable outcome.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
