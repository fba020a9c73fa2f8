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
	"errors"
	"fmt"

	"cask-ledger-go/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Sentinel errors shared across the persistence layer.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotCompleted        = errors.New("referral not completed")
	ErrAlreadyPaid         = errors.New("referral reward already paid")
	ErrAlreadyProcessed    = errors.New("event already processed")
	ErrNotFound            = errors.New("record not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOfferUnavailable    = errors.New("offer inactive or expired")
)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(cfg.CreateDummyUsers); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema(createDummyUsers bool) error {
	schema := `
	-- Users carry the account ledger state. balance and total_earnings are
	-- mutated only through Credit/Debit, never assigned directly.
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		referral_code TEXT NOT NULL UNIQUE,
		balance NUMERIC NOT NULL DEFAULT 0,
		total_earnings NUMERIC NOT NULL DEFAULT 0,
		total_referrals INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code);

	-- Append-only audit trail behind every balance mutation.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reason TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		balance_before NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		reference TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_id ON ledger_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference ON ledger_entries(reference);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries(created_at);

	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		image_url TEXT,
		location TEXT,
		rating NUMERIC NOT NULL DEFAULT 0,
		price_per_share NUMERIC NOT NULL DEFAULT 0,
		annual_return NUMERIC NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		expires_at TIMESTAMP,
		interest_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		offer_id TEXT NOT NULL REFERENCES offers(id),
		investment_amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending',
		contact_method TEXT,
		offer_title TEXT,
		offer_image_url TEXT,
		offer_location TEXT,
		offer_rating NUMERIC NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		submitted_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_user_id ON purchases(user_id);
	CREATE INDEX IF NOT EXISTS idx_purchases_offer_id ON purchases(offer_id);
	CREATE INDEX IF NOT EXISTS idx_purchases_status ON purchases(status);

	-- Append-only; the newest row always matches purchases.status.
	CREATE TABLE IF NOT EXISTS purchase_status_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_id TEXT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		actor TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_history_purchase_id ON purchase_status_history(purchase_id);

	CREATE TABLE IF NOT EXISTS referrals (
		id TEXT PRIMARY KEY,
		referrer_user_id TEXT NOT NULL REFERENCES users(id),
		referee_user_id TEXT NOT NULL REFERENCES users(id),
		referral_code TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reward_amount NUMERIC NOT NULL DEFAULT 0,
		reward_paid BOOLEAN NOT NULL DEFAULT 0,
		reward_paid_date TIMESTAMP,
		first_purchase_date TIMESTAMP,
		first_purchase_amount NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- At most one pending referral per referee, by construction.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_referrals_pending_referee
		ON referrals(referee_user_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_user_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		gateway_reference TEXT,
		refund_amount NUMERIC NOT NULL DEFAULT 0,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payments_gateway_reference ON payments(gateway_reference);
	CREATE INDEX IF NOT EXISTS idx_payments_purchase_id ON payments(purchase_id);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		payout_method_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		gateway_reference TEXT,
		arrival_date TIMESTAMP,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_user_id ON payouts(user_id);
	CREATE INDEX IF NOT EXISTS idx_payouts_gateway_reference ON payouts(gateway_reference);
	CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);

	CREATE TABLE IF NOT EXISTS payout_methods (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		method_type TEXT NOT NULL,
		label TEXT NOT NULL,
		gateway_token TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payout_methods_user_id ON payout_methods(user_id);

	-- Gateway delivery dedup. The primary key is the idempotency guard:
	-- a redelivered event id inserts zero rows.
	CREATE TABLE IF NOT EXISTS webhook_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		gateway_reference TEXT,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Manual-intervention queue for compensating credits that kept failing.
	CREATE TABLE IF NOT EXISTS compensation_failures (
		id TEXT PRIMARY KEY,
		payout_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		last_error TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Insert dummy users for testing if configured to do so
	if createDummyUsers {
		users := []struct {
			id   string
			name string
			mail string
			code string
		}{
			{uuid.New().String(), "Alice Johnson", "alice.johnson@example.com", "ALICE01"},
			{uuid.New().String(), "Bob Smith", "bob.smith@example.com", "BOB0001"},
			{uuid.New().String(), "Carol Williams", "carol.williams@example.com", "CAROL01"},
		}

		for _, user := range users {
			_, err := s.db.Exec(queryInsertUser, user.id, user.name, user.mail, user.code)
			if err != nil {
				zap.L().Error("Failed to insert dummy user", zap.String("name", user.name), zap.Error(err))
			} else {
				zap.L().Info("Dummy user created", zap.String("id", user.id), zap.String("name", user.name))
			}
		}
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	return nil
}
