package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RecordWebhookEvent claims an event id for processing. The event_id primary
// key makes this the first idempotency layer: the first caller gets true,
// every redelivery gets false.
func (s *Service) RecordWebhookEvent(ctx context.Context, eventId, eventType, gatewayReference string) (bool, error) {
	if eventId == "" {
		return false, fmt.Errorf("%w: event id is required", ErrInvalidRequest)
	}

	result, err := s.db.ExecContext(ctx, queryInsertWebhookEvent, eventId, eventType, gatewayReference)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		zap.L().Warn("Duplicate webhook event delivery, skipping",
			zap.String("event_id", eventId),
			zap.String("event_type", eventType))
		return false, nil
	}
	return true, nil
}

// ReleaseWebhookEvent gives back a claimed event id. A claim must not
// outlive a failed application: the gateway's redelivery has to be able to
// retry, otherwise the event is lost for good.
func (s *Service) ReleaseWebhookEvent(ctx context.Context, eventId string) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteWebhookEvent, eventId); err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
