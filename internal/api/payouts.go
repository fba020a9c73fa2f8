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
	"time"

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const compensationAttempts = 3

// RequestPayout opens an outbound transfer. The balance debit commits first
// as the atomic overdraft guard; only then is the gateway contacted, outside
// any open transaction. A definitive synchronous gateway failure compensates
// immediately, a timeout leaves the payout pending for the webhook.
func (s *LedgerService) RequestPayout(ctx context.Context, userId string, req models.PayoutRequest) (*models.Payout, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payout amount must be positive", database.ErrInvalidRequest)
	}

	method, err := s.db.GetPayoutMethodById(ctx, req.PayoutMethodId)
	if err != nil {
		return nil, err
	}
	if method.UserId != userId {
		return nil, fmt.Errorf("%w: payout method does not belong to user", database.ErrNotFound)
	}
	if !method.Active {
		return nil, fmt.Errorf("%w: payout method is inactive", database.ErrInvalidRequest)
	}

	idempotencyKey := uuid.New().String()
	payout, _, err := s.db.CreatePayoutWithHold(ctx, database.CreatePayoutParams{
		UserId:           userId,
		PayoutMethodId:   method.Id,
		Amount:           req.Amount,
		GatewayReference: idempotencyKey,
		ExpectedArrival:  time.Now().Add(s.gwCfg.ArrivalOffset),
	})
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gwCfg.Timeout)
	defer cancel()

	result, err := s.gateway.InitiatePayout(gwCtx, gateway.PayoutParams{
		IdempotencyKey: idempotencyKey,
		Amount:         req.Amount,
		DestToken:      method.GatewayToken,
		UserId:         userId,
	})
	if err != nil {
		if gateway.IsTimeout(err) {
			// Unknown outcome. The debit stands and the payout stays
			// pending; the asynchronous event resolves it. Guessing here
			// risks a double compensation.
			zap.L().Warn("Payout initiation timed out, awaiting webhook",
				zap.String("payout_id", payout.Id))
			s.notifier.Emit(notify.Event{
				Type:    "payout.processing",
				UserId:  userId,
				Title:   "Payout processing",
				Message: "Your payout is processing; we will notify you once it settles",
			})
			return payout, nil
		}

		s.compensateFailedPayout(ctx, payout, err.Error())
		return nil, fmt.Errorf("payout initiation rejected: %w", err)
	}

	if result.Reference != "" && result.Reference != idempotencyKey {
		if err := s.db.ActivatePayout(ctx, payout.Id, result.Reference, result.Status); err != nil {
			zap.L().Error("Failed to store gateway reference",
				zap.String("payout_id", payout.Id), zap.Error(err))
		}
	} else if result.Status == models.PayoutStatusInTransit {
		if err := s.db.ActivatePayout(ctx, payout.Id, idempotencyKey, result.Status); err != nil {
			zap.L().Error("Failed to update payout status",
				zap.String("payout_id", payout.Id), zap.Error(err))
		}
	}

	s.notifier.Emit(notify.Event{
		Type:    "payout.requested",
		UserId:  userId,
		Title:   "Payout requested",
		Message: fmt.Sprintf("Your payout of %s is on its way", req.Amount.String()),
	})
	return s.db.GetPayoutById(ctx, payout.Id)
}

// compensateFailedPayout reverses the optimistic debit after a definitive
// synchronous gateway failure. The compensating credit is mandatory: it is
// retried, and if it still cannot be applied the debit is escalated to the
// manual-intervention queue.
func (s *LedgerService) compensateFailedPayout(ctx context.Context, payout *models.Payout, reason string) {
	var lastErr error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		_, compensated, err := s.db.FailPayoutWithCompensation(ctx, payout.Id, reason)
		if err == nil {
			if compensated {
				s.notifier.Emit(notify.Event{
					Type:     "payout.failed",
					UserId:   payout.UserId,
					Title:    "Payout failed",
					Message:  "Your payout could not be processed; the amount has been returned to your balance",
					Priority: notify.PriorityHigh,
				})
			}
			return
		}
		lastErr = err
		zap.L().Warn("Compensating credit attempt failed",
			zap.String("payout_id", payout.Id),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !sleepContext(ctx, time.Duration(attempt)*100*time.Millisecond) {
			break
		}
	}

	// Escalation must land even when the request context is gone; the debit
	// is already taken and someone has to give it back.
	if err := s.db.RecordCompensationFailure(context.WithoutCancel(ctx), payout.Id, payout.UserId, payout.Amount, lastErr.Error()); err != nil {
		zap.L().Error("Failed to escalate compensation failure",
			zap.String("payout_id", payout.Id), zap.Error(err))
	}
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first.
// Returns false on cancellation.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// GetBalance returns the user's balance with recent ledger activity.
func (s *LedgerService) GetBalance(ctx context.Context, userId string, historyLimit int) (*models.BalanceResponse, error) {
	balance, earnings, err := s.db.GetBalance(ctx, userId)
	if err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	if historyLimit > 0 {
		entries, err = s.db.GetLedgerEntries(ctx, userId, historyLimit, 0)
		if err != nil {
			return nil, err
		}
	}

	return &models.BalanceResponse{
		Balance:       balance,
		TotalEarnings: earnings,
		Entries:       entries,
	}, nil
}
