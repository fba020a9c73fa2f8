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

package common

import (
	"context"
	"log"
	"strings"

	"cask-ledger-go/internal/api"
	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"
	"cask-ledger-go/internal/webhook"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService      *database.Service
	GatewayService *gateway.Service
	Notifier       *notify.Notifier
	LedgerService  *api.LedgerService
	Reconciler     *webhook.Reconciler
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.OffersFile != "" {
		seeds, err := LoadOfferCatalog(cfg.Database.OffersFile)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		if err := dbService.SeedOffers(ctx, seeds); err != nil {
			dbService.Close()
			return nil, err
		}
	}

	gatewayService, err := gateway.NewService(cfg.Gateway)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	notifier := notify.NewNotifier(256)
	notifier.Start()

	ledgerService := api.NewLedgerService(dbService, gatewayService, notifier, cfg.Gateway, cfg.Referral)
	reconciler := webhook.NewReconciler(dbService, notifier)

	return &Services{
		DbService:      dbService,
		GatewayService: gatewayService,
		Notifier:       notifier,
		LedgerService:  ledgerService,
		Reconciler:     reconciler,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like reconciliation reports.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Notifier != nil {
		cs.Notifier.Stop()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
