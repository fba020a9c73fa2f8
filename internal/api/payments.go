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

	"github.com/shopspring/decimal"
)

// RefundPayment pushes a refund through the gateway and records it against
// the payment. Refunds return to the original instrument, never to the
// account balance. The gateway call runs first: if it is rejected, nothing
// is recorded.
func (s *LedgerService) RefundPayment(ctx context.Context, paymentId string, req models.RefundRequest) (*models.Payment, error) {
	payment, err := s.db.GetPaymentById(ctx, paymentId)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return nil, fmt.Errorf("%w: only succeeded payments can be refunded, payment is %s", database.ErrInvalidTransition, payment.Status)
	}

	amount := req.Amount
	if amount.IsZero() {
		// Absent amount means a full refund of what remains.
		amount = payment.Amount.Sub(payment.RefundAmount)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: refund amount must be positive", database.ErrInvalidAmount)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gwCfg.Timeout)
	defer cancel()

	if err := s.gateway.Refund(gwCtx, gateway.RefundParams{
		Reference: payment.GatewayReference,
		Amount:    amount,
		Reason:    req.Reason,
	}); err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	refunded, err := s.db.ApplyRefund(ctx, paymentId, amount)
	if err != nil {
		return nil, err
	}

	s.notifier.Emit(notify.Event{
		Type:    "payment.refunded",
		UserId:  payment.UserId,
		Title:   "Refund issued",
		Message: fmt.Sprintf("A refund of %s has been issued to your original payment method", amount.String()),
	})
	return refunded, nil
}
