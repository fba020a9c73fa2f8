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

package main

import (
	"context"
	"flag"
	"fmt"

	"cask-ledger-go/internal/common"
	"cask-ledger-go/internal/config"
	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/models"

	"go.uber.org/zap"
)

type reconcileStats struct {
	totalUsers int
	matched    int
	mismatched int
}

func printUser(user models.User, ok bool, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	verdict := "OK"
	if !ok {
		verdict = "MISMATCH"
	}
	fmt.Printf("%s %-30s balance: %12s  earnings: %12s  [%s]\n",
		symbol, user.Email, user.Balance.String(), user.TotalEarnings.String(), verdict)
}

func reconcileUsers(ctx context.Context, users []models.User, dbService *database.Service, logger *zap.Logger) reconcileStats {
	stats := reconcileStats{}

	for i, user := range users {
		stats.totalUsers++
		isLast := i == len(users)-1

		err := dbService.ReconcileBalance(ctx, user.Id)
		if err != nil {
			stats.mismatched++
			logger.Error("Balance reconciliation mismatch",
				zap.String("user_id", user.Id),
				zap.String("email", user.Email),
				zap.Error(err))
			printUser(user, false, isLast)
			continue
		}

		stats.matched++
		printUser(user, true, isLast)
	}

	return stats
}

func printCompensationQueue(ctx context.Context, dbService *database.Service, logger *zap.Logger) {
	failures, err := dbService.ListCompensationFailures(ctx)
	if err != nil {
		logger.Error("Failed to list compensation failures", zap.Error(err))
		return
	}
	if len(failures) == 0 {
		fmt.Println("No pending compensation failures")
		return
	}

	common.PrintHeader("COMPENSATION FAILURES REQUIRING MANUAL INTERVENTION", common.DefaultWidth)
	for i, failure := range failures {
		isLast := i == len(failures)-1
		fmt.Printf("%s payout %s  user %s  amount %s  (%s)\n",
			common.BoxPrefix(isLast), failure.PayoutId, failure.UserId,
			failure.Amount.String(), failure.LastError)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	flag.Parse()

	logger.Info("Starting balance reconciliation")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := dbService.GetUsers(ctx)
	if err != nil {
		logger.Fatal("Failed to load users", zap.Error(err))
	}

	common.PrintHeader("BALANCE RECONCILIATION REPORT", common.DefaultWidth)

	stats := reconcileUsers(ctx, users, dbService, logger)

	printCompensationQueue(ctx, dbService, logger)

	summary := fmt.Sprintf("SUMMARY: %d users checked, %d matched, %d mismatched",
		stats.totalUsers, stats.matched, stats.mismatched)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Reconciliation completed",
		zap.Int("users", stats.totalUsers),
		zap.Int("matched", stats.matched),
		zap.Int("mismatched", stats.mismatched))
}
