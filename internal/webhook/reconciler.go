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

// Package webhook reconciles asynchronous gateway events against the local
// payment and payout ledgers. The gateway delivers at-least-once, so every
// handler here must tolerate the same event arriving any number of times.
package webhook

import (
	"context"
	"fmt"
	"time"

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"

	"go.uber.org/zap"
)

// Notifier receives fire-and-forget activity events.
type Notifier interface {
	Emit(event notify.Event)
}

// Reconciler applies gateway events to the database.
type Reconciler struct {
	db       *database.Service
	notifier Notifier
}

func NewReconciler(db *database.Service, notifier Notifier) *Reconciler {
	return &Reconciler{db: db, notifier: notifier}
}

// Process applies one gateway event. Duplicate event ids are acknowledged
// without side effects; the event-id ledger is the first idempotency layer,
// the status-guarded transitions underneath are the second.
func (r *Reconciler) Process(ctx context.Context, event models.GatewayEvent) error {
	if event.EventId == "" || event.EventType == "" {
		return fmt.Errorf("%w: event id and type are required", database.ErrInvalidRequest)
	}

	firstTime, err := r.db.RecordWebhookEvent(ctx, event.EventId, event.EventType, event.Data.GatewayReference)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !firstTime {
		zap.L().Info("Duplicate webhook event acknowledged",
			zap.String("event_id", event.EventId),
			zap.String("event_type", event.EventType))
		return nil
	}

	var applyErr error
	switch event.EventType {
	case models.EventPaymentSucceeded:
		applyErr = r.handlePaymentSucceeded(ctx, event)
	case models.EventPaymentFailed:
		applyErr = r.handlePaymentFailed(ctx, event)
	case models.EventPayoutPaid:
		applyErr = r.handlePayoutPaid(ctx, event)
	case models.EventPayoutFailed:
		applyErr = r.handlePayoutFailed(ctx, event)
	default:
		// Acknowledge so the gateway stops redelivering; we only consume a
		// subset of its catalogue.
		zap.L().Info("Ignoring unhandled webhook event type",
			zap.String("event_id", event.EventId),
			zap.String("event_type", event.EventType))
		return nil
	}

	if applyErr != nil {
		// The claim must not outlive a failed application: the error is
		// returned to the gateway so it redelivers, and the redelivery has
		// to pass the dedup check again. The release runs detached from the
		// request context, which may already be cancelled.
		if releaseErr := r.db.ReleaseWebhookEvent(context.WithoutCancel(ctx), event.EventId); releaseErr != nil {
			zap.L().Error("Failed to release webhook event after failed application",
				zap.String("event_id", event.EventId),
				zap.String("event_type", event.EventType),
				zap.Error(releaseErr))
		}
		return applyErr
	}
	return nil
}

func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, event models.GatewayEvent) error {
	payment, applied, err := r.db.MarkPaymentSucceeded(ctx, event.Data.GatewayReference)
	if err != nil {
		return err
	}
	if !applied {
		zap.L().Info("Payment already settled",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(payment.Status)))
		return nil
	}

	r.notifier.Emit(notify.Event{
		Type:    "payment.succeeded",
		UserId:  payment.UserId,
		Title:   "Payment received",
		Message: fmt.Sprintf("Your payment of %s has been received", payment.Amount.String()),
	})
	return nil
}

func (r *Reconciler) handlePaymentFailed(ctx context.Context, event models.GatewayEvent) error {
	payment, applied, err := r.db.MarkPaymentFailed(ctx, event.Data.GatewayReference, event.Data.FailureReason)
	if err != nil {
		return err
	}
	if !applied {
		zap.L().Info("Payment failure already recorded",
			zap.String("payment_id", payment.Id),
			zap.String("status", string(payment.Status)))
		return nil
	}

	r.notifier.Emit(notify.Event{
		Type:     "payment.failed",
		UserId:   payment.UserId,
		Title:    "Payment failed",
		Message:  "Your payment could not be processed; please try again or use another method",
		Priority: notify.PriorityHigh,
	})
	return nil
}

func (r *Reconciler) handlePayoutPaid(ctx context.Context, event models.GatewayEvent) error {
	arrival := time.Now()
	if event.Data.OccurredAt != nil {
		arrival = *event.Data.OccurredAt
	}

	payout, applied, err := r.db.MarkPayoutPaid(ctx, event.Data.GatewayReference, arrival)
	if err != nil {
		return err
	}
	if !applied {
		zap.L().Info("Payout already settled",
			zap.String("payout_id", payout.Id),
			zap.String("status", string(payout.Status)))
		return nil
	}

	r.notifier.Emit(notify.Event{
		Type:    "payout.paid",
		UserId:  payout.UserId,
		Title:   "Payout completed",
		Message: fmt.Sprintf("Your payout of %s has arrived", payout.Amount.String()),
	})
	return nil
}

// handlePayoutFailed reverses the balance hold. The compensating credit and
// the status flip share one transaction, and the status guard means a
// redelivered failure event cannot credit twice even if the event-id ledger
// were ever bypassed.
func (r *Reconciler) handlePayoutFailed(ctx context.Context, event models.GatewayEvent) error {
	payout, err := r.db.GetPayoutByGatewayRef(ctx, event.Data.GatewayReference)
	if err != nil {
		return err
	}

	payout, compensated, err := r.db.FailPayoutWithCompensation(ctx, payout.Id, event.Data.FailureReason)
	if err != nil {
		return err
	}
	if !compensated {
		return nil
	}

	r.notifier.Emit(notify.Event{
		Type:     "payout.failed",
		UserId:   payout.UserId,
		Title:    "Payout failed",
		Message:  "Your payout could not be completed; the amount has been returned to your balance",
		Priority: notify.PriorityHigh,
	})
	return nil
}
