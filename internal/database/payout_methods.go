package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cask-ledger-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePayoutMethod stores a payout destination for a user. The gateway
// token was issued by the gateway when the user registered the destination.
func (s *Service) CreatePayoutMethod(ctx context.Context, userId, methodType, label, gatewayToken string) (*models.PayoutMethod, error) {
	if userId == "" || methodType == "" || gatewayToken == "" {
		return nil, fmt.Errorf("%w: user id, method type and gateway token are required", ErrInvalidRequest)
	}

	methodId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertPayoutMethod,
		methodId, userId, methodType, label, gatewayToken, time.Now())
	if err != nil {
		return nil, fmt.Errorf("unable to insert payout method: %w", err)
	}

	zap.L().Info("Payout method created",
		zap.String("method_id", methodId),
		zap.String("user_id", userId),
		zap.String("type", methodType))
	return s.GetPayoutMethodById(ctx, methodId)
}

func (s *Service) GetPayoutMethodById(ctx context.Context, methodId string) (*models.PayoutMethod, error) {
	var method models.PayoutMethod
	err := s.db.QueryRowContext(ctx, queryGetPayoutMethodById, methodId).Scan(
		&method.Id, &method.UserId, &method.MethodType, &method.Label,
		&method.GatewayToken, &method.Active, &method.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payout method", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to scan payout method: %w", err)
	}
	return &method, nil
}

// ListUserPayoutMethods returns a user's active payout destinations,
// newest first.
func (s *Service) ListUserPayoutMethods(ctx context.Context, userId string) ([]models.PayoutMethod, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserPayoutMethods, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query payout methods: %w", err)
	}
	defer rows.Close()

	var methods []models.PayoutMethod
	for rows.Next() {
		var method models.PayoutMethod
		err = rows.Scan(&method.Id, &method.UserId, &method.MethodType,
			&method.Label, &method.GatewayToken, &method.Active, &method.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan payout method: %w", err)
		}
		methods = append(methods, method)
	}
	return methods, rows.Err()
}
