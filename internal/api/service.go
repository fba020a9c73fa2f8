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
)

// Gateway is the subset of the payment gateway client the ledger service
// needs. Tests substitute a fake.
type Gateway interface {
	InitiatePayout(ctx context.Context, params gateway.PayoutParams) (*gateway.PayoutResult, error)
	Charge(ctx context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error)
	Refund(ctx context.Context, params gateway.RefundParams) error
}

// Notifier receives fire-and-forget activity events.
type Notifier interface {
	Emit(event notify.Event)
}

// LedgerService orchestrates the investment lifecycle over the database,
// the payment gateway and the notification sink.
type LedgerService struct {
	db       *database.Service
	gateway  Gateway
	notifier Notifier
	gwCfg    models.GatewayConfig
	refCfg   models.ReferralConfig
}

func NewLedgerService(db *database.Service, gw Gateway, notifier Notifier, gwCfg models.GatewayConfig, refCfg models.ReferralConfig) *LedgerService {
	return &LedgerService{
		db:       db,
		gateway:  gw,
		notifier: notifier,
		gwCfg:    gwCfg,
		refCfg:   refCfg,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.db.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// DB exposes the persistence layer for read paths and the webhook reconciler.
func (s *LedgerService) DB() *database.Service {
	return s.db
}
