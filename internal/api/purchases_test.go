package api

import (
	"context"
	"testing"

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func seedOfferAndUsers(t *testing.T, db *database.Service) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.CreateUser(ctx, "referrer", "Referrer", "referrer@example.com", "REFER01"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := db.CreateUser(ctx, "buyer", "Buyer", "buyer@example.com", "BUYER01"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	err := db.SeedOffers(ctx, []models.OfferSeed{{
		Id:            "offer1",
		Title:         "Test Cask",
		ImageUrl:      "https://example.com/img.jpg",
		Location:      "Speyside",
		Rating:        "4.5",
		PricePerShare: "100.00",
		AnnualReturn:  "10.0",
		ExpiresAt:     "2030-01-01T00:00:00Z",
	}})
	if err != nil {
		t.Fatalf("SeedOffers failed: %v", err)
	}
}

func createApprovedPurchase(t *testing.T, service *LedgerService) *models.Purchase {
	t.Helper()
	ctx := context.Background()
	purchase, err := service.CreatePurchase(ctx, "buyer", models.CreatePurchaseRequest{
		OfferId:          "offer1",
		InvestmentAmount: decimal.NewFromInt(500),
		ContactMethod:    "email",
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}
	if _, err := service.UpdatePurchaseStatus(ctx, purchase.Id, models.PurchaseStatusActive, "admin", "approved"); err != nil {
		t.Fatalf("Approval failed: %v", err)
	}
	return purchase
}

func TestUpdatePurchaseStatus_ApprovalInitiatesCharge(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	seedOfferAndUsers(t, db)
	purchase := createApprovedPurchase(t, service)

	if len(gw.chargeCalls) != 1 {
		t.Fatalf("Expected one charge call, got %d", len(gw.chargeCalls))
	}
	if gw.chargeCalls[0].PurchaseId != purchase.Id {
		t.Errorf("Expected charge for purchase %s, got %s", purchase.Id, gw.chargeCalls[0].PurchaseId)
	}
	if !gw.chargeCalls[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected charge amount 500, got %s", gw.chargeCalls[0].Amount.String())
	}

	payment, err := db.GetPaymentByGatewayRef(context.Background(), gw.chargeCalls[0].IdempotencyKey)
	if err != nil {
		t.Fatalf("Payment record missing: %v", err)
	}
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("Expected pending payment awaiting webhook, got %s", payment.Status)
	}
}

// A gateway rejection of the charge must not block the approval itself.
func TestUpdatePurchaseStatus_ChargeFailureDoesNotBlockApproval(t *testing.T) {
	gw := &fakeGateway{chargeErr: &gateway.Error{StatusCode: 422, Code: "no_payment_method", Message: "no method on file"}}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	seedOfferAndUsers(t, db)
	purchase := createApprovedPurchase(t, service)

	stored, err := db.GetPurchaseById(context.Background(), purchase.Id)
	if err != nil {
		t.Fatalf("GetPurchaseById failed: %v", err)
	}
	if stored.Status != models.PurchaseStatusActive {
		t.Errorf("Approval must stand despite charge failure, got %s", stored.Status)
	}

	payment, err := db.GetPaymentByGatewayRef(context.Background(), gw.chargeCalls[0].IdempotencyKey)
	if err != nil {
		t.Fatalf("Payment record missing: %v", err)
	}
	if payment.Status != models.PaymentStatusFailed {
		t.Errorf("Expected failed payment, got %s", payment.Status)
	}
}

func TestUpdatePurchaseStatus_CompletionTriggersReferral(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	seedOfferAndUsers(t, db)
	referral, err := db.CreateReferral(ctx, "referrer", "buyer", "REFER01", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("CreateReferral failed: %v", err)
	}

	purchase := createApprovedPurchase(t, service)
	if _, err := service.UpdatePurchaseStatus(ctx, purchase.Id, models.PurchaseStatusCompleted, "admin", "funds received"); err != nil {
		t.Fatalf("Completion failed: %v", err)
	}

	stored, err := db.GetReferralById(ctx, referral.Id)
	if err != nil {
		t.Fatalf("GetReferralById failed: %v", err)
	}
	if stored.Status != models.ReferralStatusCompleted {
		t.Errorf("Expected completed referral, got %s", stored.Status)
	}
	if !stored.FirstPurchaseAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected first purchase amount 500, got %s", stored.FirstPurchaseAmount.String())
	}

	// Completion queues the reward for review; it is not paid automatically.
	if stored.RewardPaid {
		t.Error("Reward must not be paid automatically on completion")
	}
	balance, _, _ := db.GetBalance(ctx, "referrer")
	if !balance.Equal(decimal.Zero) {
		t.Errorf("Referrer balance must be untouched, got %s", balance.String())
	}
}

func TestUpdatePurchaseStatus_CompletionWithoutReferralIsQuiet(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	seedOfferAndUsers(t, db)

	purchase := createApprovedPurchase(t, service)
	if _, err := service.UpdatePurchaseStatus(ctx, purchase.Id, models.PurchaseStatusCompleted, "admin", ""); err != nil {
		t.Fatalf("Completion failed for unreferred buyer: %v", err)
	}
}

func TestRegisterUser_WithReferralCode(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	if _, err := db.CreateUser(ctx, "referrer", "Referrer", "referrer@example.com", "REFER01"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	user, err := service.RegisterUser(ctx, models.RegisterUserRequest{
		Name:         "New User",
		Email:        "new@example.com",
		ReferralCode: "refer01",
	})
	if err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	if user.ReferralCode == "" {
		t.Error("Expected new user to receive their own referral code")
	}

	// The pending referral exists: completing the new user's first purchase
	// must find it.
	referral, completed, err := db.CompleteReferral(ctx, user.Id, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("CompleteReferral failed: %v", err)
	}
	if !completed {
		t.Fatal("Expected pending referral from registration")
	}
	if referral.ReferrerUserId != "referrer" {
		t.Errorf("Expected referrer resolved from code, got %s", referral.ReferrerUserId)
	}
}

func TestRegisterUser_UnknownReferralCode(t *testing.T) {
	gw := &fakeGateway{}
	service, _, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	_, err := service.RegisterUser(context.Background(), models.RegisterUserRequest{
		Name:         "New User",
		Email:        "new@example.com",
		ReferralCode: "NOPE",
	})
	if err == nil {
		t.Fatal("Expected registration with unknown code to fail")
	}
}

func TestRefundPayment(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	seedOfferAndUsers(t, db)
	createApprovedPurchase(t, service)

	chargeRef := gw.chargeCalls[0].IdempotencyKey
	if _, _, err := db.MarkPaymentSucceeded(ctx, chargeRef); err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}
	payment, err := db.GetPaymentByGatewayRef(ctx, chargeRef)
	if err != nil {
		t.Fatalf("GetPaymentByGatewayRef failed: %v", err)
	}

	refunded, err := service.RefundPayment(ctx, payment.Id, models.RefundRequest{
		Amount: decimal.NewFromInt(200),
		Reason: "partial cancellation",
	})
	if err != nil {
		t.Fatalf("RefundPayment failed: %v", err)
	}
	if refunded.Status != models.PaymentStatusSucceeded {
		t.Errorf("Partial refund must keep succeeded, got %s", refunded.Status)
	}
	if len(gw.refundCalls) != 1 {
		t.Fatalf("Expected one gateway refund call, got %d", len(gw.refundCalls))
	}
	if gw.refundCalls[0].Reference != chargeRef {
		t.Errorf("Expected refund against %s, got %s", chargeRef, gw.refundCalls[0].Reference)
	}

	// Empty amount refunds the remainder and closes the payment.
	full, err := service.RefundPayment(ctx, payment.Id, models.RefundRequest{Reason: "cancelled"})
	if err != nil {
		t.Fatalf("Full refund failed: %v", err)
	}
	if full.Status != models.PaymentStatusRefunded {
		t.Errorf("Expected refunded, got %s", full.Status)
	}

	// Refunds never touch the account balance.
	balance, _, _ := db.GetBalance(ctx, "buyer")
	if !balance.Equal(decimal.Zero) {
		t.Errorf("Refund leaked into account balance: %s", balance.String())
	}
}

func TestRefundPayment_GatewayRejection(t *testing.T) {
	gw := &fakeGateway{refundErr: &gateway.Error{StatusCode: 409, Code: "already_refunded", Message: "already refunded"}}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	seedOfferAndUsers(t, db)
	createApprovedPurchase(t, service)

	chargeRef := gw.chargeCalls[0].IdempotencyKey
	if _, _, err := db.MarkPaymentSucceeded(ctx, chargeRef); err != nil {
		t.Fatalf("MarkPaymentSucceeded failed: %v", err)
	}
	payment, err := db.GetPaymentByGatewayRef(ctx, chargeRef)
	if err != nil {
		t.Fatalf("GetPaymentByGatewayRef failed: %v", err)
	}

	if _, err := service.RefundPayment(ctx, payment.Id, models.RefundRequest{Amount: decimal.NewFromInt(100)}); err == nil {
		t.Fatal("Expected gateway rejection to propagate")
	}

	// Nothing recorded when the gateway says no.
	stored, _ := db.GetPaymentById(ctx, payment.Id)
	if !stored.RefundAmount.Equal(decimal.Zero) {
		t.Errorf("Refund recorded despite gateway rejection: %s", stored.RefundAmount.String())
	}
}

func TestPayReferralReward_CreditsReferrer(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	seedOfferAndUsers(t, db)
	referral, err := db.CreateReferral(ctx, "referrer", "buyer", "REFER01", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("CreateReferral failed: %v", err)
	}
	if _, _, err := db.CompleteReferral(ctx, "buyer", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("CompleteReferral failed: %v", err)
	}

	paid, err := service.PayReferralReward(ctx, referral.Id)
	if err != nil {
		t.Fatalf("PayReferralReward failed: %v", err)
	}
	if !paid.RewardPaid {
		t.Error("Expected reward marked paid")
	}

	balance, earnings, _ := db.GetBalance(ctx, "referrer")
	if !balance.Equal(decimal.NewFromInt(50)) || !earnings.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected balance/earnings 50/50, got %s/%s", balance.String(), earnings.String())
	}
}
