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

// CreatePayment records an inbound charge attempt for a purchase. The
// gateway reference is our idempotency key so the asynchronous callback can
// find the row even if the synchronous response was lost.
func (s *Service) CreatePayment(ctx context.Context, purchaseId, userId string, amount decimal.Decimal, gatewayReference string) (*models.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvalidAmount)
	}

	paymentId := uuid.New().String()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, queryInsertPayment,
		paymentId, purchaseId, userId, amount.String(),
		string(models.PaymentStatusPending), gatewayReference, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	zap.L().Info("Payment created",
		zap.String("payment_id", paymentId),
		zap.String("purchase_id", purchaseId),
		zap.String("amount", amount.String()))
	return s.GetPaymentById(ctx, paymentId)
}

// MarkPaymentSucceeded applies a payment.succeeded event. Guarded on the
// pending/processing statuses; a redelivered event changes nothing.
func (s *Service) MarkPaymentSucceeded(ctx context.Context, gatewayReference string) (*models.Payment, bool, error) {
	payment, err := s.GetPaymentByGatewayRef(ctx, gatewayReference)
	if err != nil {
		return nil, false, err
	}

	result, err := s.db.ExecContext(ctx, queryMarkPaymentSucceeded, gatewayReference)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return payment, false, nil
	}

	payment.Status = models.PaymentStatusSucceeded
	return payment, true, nil
}

// MarkPaymentFailed applies a payment.failed event. The charge never
// completed, so no ledger compensation is involved.
func (s *Service) MarkPaymentFailed(ctx context.Context, gatewayReference, reason string) (*models.Payment, bool, error) {
	payment, err := s.GetPaymentByGatewayRef(ctx, gatewayReference)
	if err != nil {
		return nil, false, err
	}

	result, err := s.db.ExecContext(ctx, queryMarkPaymentFailed, reason, gatewayReference)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return payment, false, nil
	}

	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason
	return payment, true, nil
}

// ApplyRefund accumulates a refund against a succeeded payment. A full
// refund flips the status to refunded; a partial refund leaves it succeeded.
// Refunds go back to the original payment instrument, so the account ledger
// is never touched here.
func (s *Service) ApplyRefund(ctx context.Context, paymentId string, amount decimal.Decimal) (*models.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := scanPayment(tx.QueryRowContext(ctx, queryGetPaymentById, paymentId))
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return nil, fmt.Errorf("%w: refund requires a succeeded payment, got %s", ErrInvalidTransition, payment.Status)
	}

	newRefundTotal := payment.RefundAmount.Add(amount)
	if newRefundTotal.GreaterThan(payment.Amount) {
		return nil, fmt.Errorf("%w: refund total %s exceeds payment amount %s", ErrInvalidAmount, newRefundTotal.String(), payment.Amount.String())
	}

	nextStatus := models.PaymentStatusSucceeded
	if newRefundTotal.Equal(payment.Amount) {
		nextStatus = models.PaymentStatusRefunded
	}

	result, err := tx.ExecContext(ctx, queryApplyRefund,
		newRefundTotal.String(), string(nextStatus), paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to apply refund: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: payment %s changed concurrently", ErrInvalidTransition, paymentId)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	zap.L().Info("Refund applied",
		zap.String("payment_id", paymentId),
		zap.String("refund_amount", amount.String()),
		zap.String("refund_total", newRefundTotal.String()),
		zap.String("status", string(nextStatus)))

	payment.RefundAmount = newRefundTotal
	payment.Status = nextStatus
	return payment, nil
}

func (s *Service) GetPaymentById(ctx context.Context, paymentId string) (*models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, queryGetPaymentById, paymentId))
}

func (s *Service) GetPaymentByGatewayRef(ctx context.Context, gatewayReference string) (*models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, queryGetPaymentByGatewayRef, gatewayReference))
}

func scanPayment(row *sql.Row) (*models.Payment, error) {
	var payment models.Payment
	var amountStr, refundStr string
	err := row.Scan(&payment.Id, &payment.PurchaseId, &payment.UserId,
		&amountStr, &payment.Status, &payment.GatewayReference,
		&refundStr, &payment.FailureReason, &payment.CreatedAt, &payment.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan payment: %w", err)
	}

	if payment.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if payment.RefundAmount, err = decimal.NewFromString(refundStr); err != nil {
		return nil, fmt.Errorf("failed to parse refund amount '%s': %w", refundStr, err)
	}
	return &payment, nil
}
