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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePurchaseRequest is the body of POST /v1/purchases.
type CreatePurchaseRequest struct {
	OfferId          string          `json:"offer_id"`
	InvestmentAmount decimal.Decimal `json:"investment_amount"`
	ContactMethod    string          `json:"contact_method"`
}

// UpdatePurchaseStatusRequest is the body of PUT /v1/purchases/{id}/status.
type UpdatePurchaseStatusRequest struct {
	Status PurchaseStatus `json:"status"`
	Reason string         `json:"reason"`
}

// PayoutRequest is the body of POST /v1/payouts.
type PayoutRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PayoutMethodId string          `json:"payout_method_id"`
}

// RefundRequest is the body of POST /v1/payments/{id}/refund.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// RegisterUserRequest is the body of POST /v1/users. The referral code is
// optional; when present and valid a pending referral is created.
type RegisterUserRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// BalanceResponse is the body of GET /v1/balance.
type BalanceResponse struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	Entries       []LedgerEntry   `json:"entries,omitempty"`
}

// GatewayEvent is an asynchronous delivery event from the payment gateway.
// The same event id may be delivered more than once.
type GatewayEvent struct {
	EventId   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Data      GatewayEventData `json:"data"`
}

// GatewayEventData carries the event payload fields we consume.
type GatewayEventData struct {
	GatewayReference string          `json:"gateway_reference"`
	Amount           decimal.Decimal `json:"amount,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	OccurredAt       *time.Time      `json:"occurred_at,omitempty"`
}

// Gateway event types we reconcile.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
)
