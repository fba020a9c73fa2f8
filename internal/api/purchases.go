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

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePurchase records a new expression of interest in an offer.
func (s *LedgerService) CreatePurchase(ctx context.Context, userId string, req models.CreatePurchaseRequest) (*models.Purchase, error) {
	purchase, err := s.db.CreatePurchase(ctx, database.CreatePurchaseParams{
		UserId:           userId,
		OfferId:          req.OfferId,
		InvestmentAmount: req.InvestmentAmount,
		ContactMethod:    req.ContactMethod,
		Actor:            userId,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(notify.Event{
		Type:    "purchase.submitted",
		UserId:  userId,
		Title:   "Interest received",
		Message: fmt.Sprintf("Your interest in %s for %s has been received", purchase.OfferTitle, purchase.InvestmentAmount.String()),
	})
	return purchase, nil
}

// UpdatePurchaseStatus applies an admin-driven status transition. Approval
// initiates the inbound charge; completion triggers referral completion for
// the purchaser's referral, if any.
func (s *LedgerService) UpdatePurchaseStatus(ctx context.Context, purchaseId string, next models.PurchaseStatus, actor, reason string) (*models.Purchase, error) {
	purchase, err := s.db.TransitionPurchase(ctx, purchaseId, next, actor, reason)
	if err != nil {
		return nil, err
	}

	switch next {
	case models.PurchaseStatusActive:
		s.initiateCharge(ctx, purchase)
	case models.PurchaseStatusCompleted:
		s.completeReferral(ctx, purchase)
	}

	s.notifier.Emit(notify.Event{
		Type:    "purchase.status_changed",
		UserId:  purchase.UserId,
		Title:   "Purchase update",
		Message: fmt.Sprintf("Your purchase of %s is now %s", purchase.OfferTitle, next),
	})
	return purchase, nil
}

// initiateCharge opens the inbound payment for an approved purchase. The
// charge outcome arrives asynchronously via the webhook; a synchronous
// gateway error leaves the payment failed but never blocks the approval.
func (s *LedgerService) initiateCharge(ctx context.Context, purchase *models.Purchase) {
	idempotencyKey := uuid.New().String()

	payment, err := s.db.CreatePayment(ctx, purchase.Id, purchase.UserId, purchase.InvestmentAmount, idempotencyKey)
	if err != nil {
		zap.L().Error("Failed to create payment record for approved purchase",
			zap.String("purchase_id", purchase.Id), zap.Error(err))
		return
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gwCfg.Timeout)
	defer cancel()

	result, err := s.gateway.Charge(gwCtx, gateway.ChargeParams{
		IdempotencyKey: idempotencyKey,
		Amount:         purchase.InvestmentAmount,
		UserId:         purchase.UserId,
		PurchaseId:     purchase.Id,
	})
	if err != nil {
		if gateway.IsTimeout(err) {
			// Unknown outcome; the webhook will settle it.
			zap.L().Warn("Charge initiation timed out, awaiting webhook",
				zap.String("payment_id", payment.Id))
			return
		}
		zap.L().Error("Charge initiation failed",
			zap.String("payment_id", payment.Id), zap.Error(err))
		if _, _, markErr := s.db.MarkPaymentFailed(ctx, idempotencyKey, err.Error()); markErr != nil {
			zap.L().Error("Failed to mark payment failed", zap.String("payment_id", payment.Id), zap.Error(markErr))
		}
		return
	}

	zap.L().Info("Charge initiated",
		zap.String("payment_id", payment.Id),
		zap.String("gateway_reference", result.Reference))
}

// completeReferral runs the referral engine against the purchaser. The
// guarded transition in the database makes this safe to call for every
// completed purchase: only the purchaser's first completion can win, and
// unreferred users are a silent no-op.
func (s *LedgerService) completeReferral(ctx context.Context, purchase *models.Purchase) {
	referral, completed, err := s.db.CompleteReferral(ctx, purchase.UserId, purchase.InvestmentAmount)
	if err != nil {
		zap.L().Error("Referral completion failed",
			zap.String("user_id", purchase.UserId), zap.Error(err))
		return
	}
	if !completed {
		return
	}

	s.notifier.Emit(notify.Event{
		Type:    "referral.completed",
		UserId:  referral.ReferrerUserId,
		Title:   "Referral completed",
		Message: fmt.Sprintf("Someone you referred made their first investment; a reward of %s is pending review", referral.RewardAmount.String()),
	})
}

// DeletePurchase removes a purchase on behalf of its owner.
func (s *LedgerService) DeletePurchase(ctx context.Context, purchaseId, userId string) error {
	return s.db.DeletePurchase(ctx, purchaseId, userId)
}
