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

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, name, email, referral_code) VALUES (?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, referral_code, balance, total_earnings, total_referrals, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByReferralCode = `
		SELECT id, name, email, referral_code, balance, total_earnings, total_referrals, created_at, updated_at
		FROM users
		WHERE referral_code = ? AND active = 1`

	queryGetActiveUsers = `
		SELECT id, name, email, referral_code, balance, total_earnings, total_referrals, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryIncrementTotalReferrals = `
		UPDATE users
		SET total_referrals = total_referrals + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Ledger queries. The debit's balance >= ? condition is the overdraft
	// guard: check and decrement are one atomic statement.
	queryCreditBalance = `
		UPDATE users
		SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND active = 1`

	queryCreditBalanceWithEarnings = `
		UPDATE users
		SET balance = balance + ?, total_earnings = total_earnings + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND active = 1`

	queryDebitBalance = `
		UPDATE users
		SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND active = 1 AND balance >= ?`

	queryGetBalance = `
		SELECT balance, total_earnings
		FROM users
		WHERE id = ? AND active = 1`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, user_id, entry_type, reason, amount, balance_before, balance_after, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetLedgerEntries = `
		SELECT id, user_id, entry_type, reason, amount, balance_before, balance_after, reference, created_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE user_id = ?`

	// Offer queries
	queryInsertOffer = `
		INSERT OR IGNORE INTO offers (id, title, image_url, location, rating, price_per_share, annual_return, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetOfferById = `
		SELECT id, title, image_url, location, rating, price_per_share, annual_return, active, expires_at, interest_count, created_at
		FROM offers
		WHERE id = ?`

	queryListActiveOffers = `
		SELECT id, title, image_url, location, rating, price_per_share, annual_return, active, expires_at, interest_count, created_at
		FROM offers
		WHERE active = 1 AND expires_at > CURRENT_TIMESTAMP
		ORDER BY created_at`

	queryIncrementOfferInterest = `
		UPDATE offers
		SET interest_count = interest_count + 1
		WHERE id = ?`

	// Purchase queries
	queryInsertPurchase = `
		INSERT INTO purchases (
			id, user_id, offer_id, investment_amount, status, contact_method,
			offer_title, offer_image_url, offer_location, offer_rating, submitted_date, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPurchaseById = `
		SELECT id, user_id, offer_id, investment_amount, status, contact_method,
		       offer_title, offer_image_url, offer_location, offer_rating, note, submitted_date, updated_at
		FROM purchases
		WHERE id = ?`

	queryListUserPurchases = `
		SELECT id, user_id, offer_id, investment_amount, status, contact_method,
		       offer_title, offer_image_url, offer_location, offer_rating, note, submitted_date, updated_at
		FROM purchases
		WHERE user_id = ?
		ORDER BY submitted_date DESC`

	// Guarded on the current status so concurrent transitions serialize on
	// the row itself.
	queryUpdatePurchaseStatus = `
		UPDATE purchases
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`

	queryInsertStatusHistory = `
		INSERT INTO purchase_status_history (purchase_id, status, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetStatusHistory = `
		SELECT id, purchase_id, status, actor, reason, created_at
		FROM purchase_status_history
		WHERE purchase_id = ?
		ORDER BY id`

	queryDeletePurchase = `
		DELETE FROM purchases
		WHERE id = ? AND user_id = ? AND status IN ('Pending', 'Reject')`

	queryAnnotatePurchase = `
		UPDATE purchases
		SET note = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Referral queries
	queryInsertReferral = `
		INSERT INTO referrals (id, referrer_user_id, referee_user_id, referral_code, status, reward_amount, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)`

	queryGetReferralById = `
		SELECT id, referrer_user_id, referee_user_id, referral_code, status, reward_amount,
		       reward_paid, reward_paid_date, first_purchase_date, first_purchase_amount, created_at
		FROM referrals
		WHERE id = ?`

	queryGetCompletedReferralByReferee = `
		SELECT id, referrer_user_id, referee_user_id, referral_code, status, reward_amount,
		       reward_paid, reward_paid_date, first_purchase_date, first_purchase_amount, created_at
		FROM referrals
		WHERE referee_user_id = ? AND status = 'completed'`

	// The status = 'pending' condition makes completion exactly-once: the
	// second caller updates zero rows.
	queryCompleteReferral = `
		UPDATE referrals
		SET status = 'completed', first_purchase_date = ?, first_purchase_amount = ?
		WHERE referee_user_id = ? AND status = 'pending'`

	queryMarkRewardPaid = `
		UPDATE referrals
		SET reward_paid = 1, reward_paid_date = ?
		WHERE id = ? AND status = 'completed' AND reward_paid = 0`

	// Payment queries
	queryInsertPayment = `
		INSERT INTO payments (id, purchase_id, user_id, amount, status, gateway_reference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPaymentById = `
		SELECT id, purchase_id, user_id, amount, status, gateway_reference, refund_amount, failure_reason, created_at, updated_at
		FROM payments
		WHERE id = ?`

	queryGetPaymentByGatewayRef = `
		SELECT id, purchase_id, user_id, amount, status, gateway_reference, refund_amount, failure_reason, created_at, updated_at
		FROM payments
		WHERE gateway_reference = ?`

	queryMarkPaymentSucceeded = `
		UPDATE payments
		SET status = 'succeeded', updated_at = CURRENT_TIMESTAMP
		WHERE gateway_reference = ? AND status IN ('pending', 'processing')`

	queryMarkPaymentFailed = `
		UPDATE payments
		SET status = 'failed', failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE gateway_reference = ? AND status IN ('pending', 'processing')`

	queryApplyRefund = `
		UPDATE payments
		SET refund_amount = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'succeeded'`

	// Payout queries
	queryInsertPayout = `
		INSERT INTO payouts (id, user_id, payout_method_id, amount, status, gateway_reference, arrival_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayoutById = `
		SELECT id, user_id, payout_method_id, amount, status, gateway_reference, arrival_date, failure_reason, created_at, updated_at
		FROM payouts
		WHERE id = ?`

	queryGetPayoutByGatewayRef = `
		SELECT id, user_id, payout_method_id, amount, status, gateway_reference, arrival_date, failure_reason, created_at, updated_at
		FROM payouts
		WHERE gateway_reference = ?`

	queryListUserPayouts = `
		SELECT id, user_id, payout_method_id, amount, status, gateway_reference, arrival_date, failure_reason, created_at, updated_at
		FROM payouts
		WHERE user_id = ?
		ORDER BY created_at DESC`

	queryActivatePayout = `
		UPDATE payouts
		SET gateway_reference = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`

	queryMarkPayoutPaid = `
		UPDATE payouts
		SET status = 'paid', arrival_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_transit')`

	// Guarded so a redelivered payout.failed event compensates only once.
	queryMarkPayoutFailed = `
		UPDATE payouts
		SET status = 'failed', failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_transit')`

	// Payout method queries
	queryInsertPayoutMethod = `
		INSERT INTO payout_methods (id, user_id, method_type, label, gateway_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetPayoutMethodById = `
		SELECT id, user_id, method_type, label, gateway_token, active, created_at
		FROM payout_methods
		WHERE id = ?`

	queryListUserPayoutMethods = `
		SELECT id, user_id, method_type, label, gateway_token, active, created_at
		FROM payout_methods
		WHERE user_id = ? AND active = 1
		ORDER BY created_at DESC`

	// Webhook event dedup
	queryInsertWebhookEvent = `
		INSERT OR IGNORE INTO webhook_events (event_id, event_type, gateway_reference)
		VALUES (?, ?, ?)`

	queryDeleteWebhookEvent = `
		DELETE FROM webhook_events
		WHERE event_id = ?`

	// Compensation escalation
	queryInsertCompensationFailure = `
		INSERT INTO compensation_failures (id, payout_id, user_id, amount, last_error)
		VALUES (?, ?, ?, ?, ?)`

	queryListCompensationFailures = `
		SELECT id, payout_id, user_id, amount, last_error, created_at
		FROM compensation_failures
		ORDER BY created_at`
)
