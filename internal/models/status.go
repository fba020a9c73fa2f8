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

// PurchaseStatus is the lifecycle state of a purchase (expression of interest).
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "Pending"
	PurchaseStatusActive    PurchaseStatus = "Active"
	PurchaseStatusCompleted PurchaseStatus = "Completed"
	PurchaseStatusReject    PurchaseStatus = "Reject"
	PurchaseStatusCancelled PurchaseStatus = "Cancelled"
)

// purchaseTransitions is the closed transition table. Any pair not listed
// here is rejected as an invalid transition.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending: {PurchaseStatusActive, PurchaseStatusReject},
	PurchaseStatusActive:  {PurchaseStatusCompleted, PurchaseStatusCancelled},
}

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusActive, PurchaseStatusCompleted,
		PurchaseStatusReject, PurchaseStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s PurchaseStatus) IsTerminal() bool {
	return len(purchaseTransitions[s]) == 0
}

func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, allowed := range purchaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReferralStatus is the lifecycle state of a referral link.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
	ReferralStatusCancelled ReferralStatus = "cancelled"
)

// PaymentStatus is the lifecycle state of an inbound charge.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PayoutStatus is the lifecycle state of an outbound transfer.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusInTransit PayoutStatus = "in_transit"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:   {PayoutStatusInTransit, PayoutStatusPaid, PayoutStatusFailed, PayoutStatusCancelled},
	PayoutStatusInTransit: {PayoutStatusPaid, PayoutStatusFailed},
}

func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PayoutStatus) IsTerminal() bool {
	return len(payoutTransitions[s]) == 0
}

// LedgerReason classifies why a balance mutation happened. Every credit and
// debit carries one; earnings-bearing reasons also bump total_earnings.
type LedgerReason string

const (
	ReasonReferralReward LedgerReason = "referral_reward"
	ReasonPayoutHold     LedgerReason = "payout_hold"
	ReasonPayoutReversal LedgerReason = "payout_reversal"
	ReasonRefund         LedgerReason = "refund"
	ReasonAdjustment     LedgerReason = "adjustment"
)

// EarningsBearing reports whether a credit with this reason counts toward
// the user's lifetime earnings.
func (r LedgerReason) EarningsBearing() bool {
	return r == ReasonReferralReward || r == ReasonRefund
}

// EntryType distinguishes the two ledger primitives.
type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)
