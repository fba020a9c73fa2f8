package database

import (
	"context"
	"errors"
	"testing"

	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func createTestPayment(t *testing.T, service *Service, ref string) *models.Payment {
	t.Helper()
	payment, err := service.CreatePayment(context.Background(), "purchase1", "user1", decimal.NewFromInt(500), ref)
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	return payment
}

func TestMarkPaymentSucceeded(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestPayment(t, service, "charge-1")

	payment, applied, err := service.MarkPaymentSucceeded(ctx, "charge-1")
	if err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}
	if !applied {
		t.Fatal("Expected first succeeded event to apply")
	}
	if payment.Status != models.PaymentStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", payment.Status)
	}

	_, applied, err = service.MarkPaymentSucceeded(ctx, "charge-1")
	if err != nil {
		t.Fatalf("Second MarkPaymentSucceeded failed: %v", err)
	}
	if applied {
		t.Fatal("Redelivered succeeded event must be a no-op")
	}
}

func TestMarkPaymentFailed_AfterSucceededIsNoOp(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestPayment(t, service, "charge-1")

	if _, _, err := service.MarkPaymentSucceeded(ctx, "charge-1"); err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}

	payment, applied, err := service.MarkPaymentFailed(ctx, "charge-1", "card declined")
	if err != nil {
		t.Fatalf("MarkPaymentFailed failed: %v", err)
	}
	if applied {
		t.Fatal("Failure after success must not apply")
	}
	if payment.Status != models.PaymentStatusSucceeded {
		t.Errorf("Status changed: %s", payment.Status)
	}
}

func TestApplyRefund_PartialThenFull(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	payment := createTestPayment(t, service, "charge-1")
	if _, _, err := service.MarkPaymentSucceeded(ctx, "charge-1"); err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}

	partial, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("Partial refund failed: %v", err)
	}
	if partial.Status != models.PaymentStatusSucceeded {
		t.Errorf("Partial refund must keep succeeded, got %s", partial.Status)
	}
	if !partial.RefundAmount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected refund total 200, got %s", partial.RefundAmount.String())
	}

	full, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("Full refund failed: %v", err)
	}
	if full.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected refunded, got %s", full.Status)
	}
}

func TestApplyRefund_OverRefundRejected(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	payment := createTestPayment(t, service, "charge-1")
	if _, _, err := service.MarkPaymentSucceeded(ctx, "charge-1"); err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}

	if _, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(600)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount, got %v", err)
	}

	if _, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(400)); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if _, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(200)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount for cumulative over-refund, got %v", err)
	}
}

func TestApplyRefund_RequiresSucceeded(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	payment := createTestPayment(t, service, "charge-1")

	if _, err := service.ApplyRefund(ctx, payment.Id, decimal.NewFromInt(100)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for pending payment, got %v", err)
	}
}

func TestRecordWebhookEvent_Dedup(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	first, err := service.RecordWebhookEvent(ctx, "evt-1", "payment.succeeded", "charge-1")
	if err != nil {
		t.Fatalf("RecordWebhookEvent failed: %v", err)
	}
	if !first {
		t.Fatal("Expected first delivery to be recorded")
	}

	second, err := service.RecordWebhookEvent(ctx, "evt-1", "payment.succeeded", "charge-1")
	if err != nil {
		t.Fatalf("Second RecordWebhookEvent failed: %v", err)
	}
	if second {
		t.Fatal("Expected duplicate event id to be rejected")
	}

	// A released claim can be claimed again.
	if err := service.ReleaseWebhookEvent(ctx, "evt-1"); err != nil {
		t.Fatalf("ReleaseWebhookEvent failed: %v", err)
	}
	again, err := service.RecordWebhookEvent(ctx, "evt-1", "payment.succeeded", "charge-1")
	if err != nil {
		t.Fatalf("Third RecordWebhookEvent failed: %v", err)
	}
	if !again {
		t.Fatal("Expected released event id to be claimable again")
	}
}
