package database

import (
	"context"
	"errors"
	"testing"

	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func createTestPurchase(t *testing.T, service *Service, userId string) *models.Purchase {
	t.Helper()
	purchase, err := service.CreatePurchase(context.Background(), CreatePurchaseParams{
		UserId:           userId,
		OfferId:          "offer1",
		InvestmentAmount: decimal.NewFromInt(500),
		ContactMethod:    "email",
		Actor:            userId,
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}
	return purchase
}

func TestCreatePurchase_SnapshotsOffer(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")

	purchase := createTestPurchase(t, service, "user1")

	if purchase.Status != models.PurchaseStatusPending {
		t.Errorf("Expected Pending status, got %s", purchase.Status)
	}
	if purchase.OfferTitle != "Test Cask offer1" {
		t.Errorf("Expected offer title snapshot, got %q", purchase.OfferTitle)
	}
	if !purchase.OfferRating.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("Expected offer rating snapshot 4.5, got %s", purchase.OfferRating.String())
	}

	offer, err := service.GetOfferById(context.Background(), "offer1")
	if err != nil {
		t.Fatalf("GetOfferById failed: %v", err)
	}
	if offer.InterestCount != 1 {
		t.Errorf("Expected interest count 1, got %d", offer.InterestCount)
	}
}

func TestCreatePurchase_InactiveOffer(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")
	if _, err := service.db.Exec("UPDATE offers SET active = 0 WHERE id = ?", "offer1"); err != nil {
		t.Fatalf("Failed to deactivate offer: %v", err)
	}

	_, err := service.CreatePurchase(context.Background(), CreatePurchaseParams{
		UserId:           "user1",
		OfferId:          "offer1",
		InvestmentAmount: decimal.NewFromInt(500),
	})
	if !errors.Is(err, ErrOfferUnavailable) {
		t.Fatalf("Expected ErrOfferUnavailable, got %v", err)
	}
}

func TestCreatePurchase_ExpiredOffer(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")
	if _, err := service.db.Exec("UPDATE offers SET expires_at = '2020-01-01 00:00:00' WHERE id = ?", "offer1"); err != nil {
		t.Fatalf("Failed to expire offer: %v", err)
	}

	_, err := service.CreatePurchase(context.Background(), CreatePurchaseParams{
		UserId:           "user1",
		OfferId:          "offer1",
		InvestmentAmount: decimal.NewFromInt(500),
	})
	if !errors.Is(err, ErrOfferUnavailable) {
		t.Fatalf("Expected ErrOfferUnavailable, got %v", err)
	}
}

func TestTransitionPurchase_HappyPath(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")
	purchase := createTestPurchase(t, service, "user1")

	active, err := service.TransitionPurchase(ctx, purchase.Id, models.PurchaseStatusActive, "admin", "approved")
	if err != nil {
		t.Fatalf("Transition to Active failed: %v", err)
	}
	if active.Status != models.PurchaseStatusActive {
		t.Errorf("Expected Active, got %s", active.Status)
	}

	completed, err := service.TransitionPurchase(ctx, purchase.Id, models.PurchaseStatusCompleted, "admin", "funds received")
	if err != nil {
		t.Fatalf("Transition to Completed failed: %v", err)
	}
	if completed.Status != models.PurchaseStatusCompleted {
		t.Errorf("Expected Completed, got %s", completed.Status)
	}

	history, err := service.GetStatusHistory(ctx, purchase.Id)
	if err != nil {
		t.Fatalf("GetStatusHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(history))
	}
	if history[0].Status != models.PurchaseStatusPending ||
		history[1].Status != models.PurchaseStatusActive ||
		history[2].Status != models.PurchaseStatusCompleted {
		t.Errorf("Unexpected history order: %v", history)
	}
	if history[2].Reason != "funds received" {
		t.Errorf("Expected reason recorded, got %q", history[2].Reason)
	}
}

func TestTransitionPurchase_InvalidTransitions(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")

	cases := []struct {
		name string
		path []models.PurchaseStatus
		next models.PurchaseStatus
	}{
		{"pending to completed", nil, models.PurchaseStatusCompleted},
		{"pending to cancelled", nil, models.PurchaseStatusCancelled},
		{"completed is terminal", []models.PurchaseStatus{models.PurchaseStatusActive, models.PurchaseStatusCompleted}, models.PurchaseStatusActive},
		{"reject is terminal", []models.PurchaseStatus{models.PurchaseStatusReject}, models.PurchaseStatusActive},
		{"cancelled is terminal", []models.PurchaseStatus{models.PurchaseStatusActive, models.PurchaseStatusCancelled}, models.PurchaseStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			purchase := createTestPurchase(t, service, "user1")
			for _, step := range tc.path {
				if _, err := service.TransitionPurchase(ctx, purchase.Id, step, "admin", ""); err != nil {
					t.Fatalf("Setup transition to %s failed: %v", step, err)
				}
			}
			if _, err := service.TransitionPurchase(ctx, purchase.Id, tc.next, "admin", ""); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestTransitionPurchase_NotFound(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := service.TransitionPurchase(context.Background(), "missing", models.PurchaseStatusActive, "admin", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeletePurchase(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")

	pending := createTestPurchase(t, service, "user1")
	if err := service.DeletePurchase(ctx, pending.Id, "user1"); err != nil {
		t.Fatalf("Delete of Pending purchase failed: %v", err)
	}
	if _, err := service.GetPurchaseById(ctx, pending.Id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected purchase gone, got %v", err)
	}

	rejected := createTestPurchase(t, service, "user1")
	if _, err := service.TransitionPurchase(ctx, rejected.Id, models.PurchaseStatusReject, "admin", ""); err != nil {
		t.Fatalf("Transition to Reject failed: %v", err)
	}
	if err := service.DeletePurchase(ctx, rejected.Id, "user1"); err != nil {
		t.Fatalf("Delete of Reject purchase failed: %v", err)
	}

	active := createTestPurchase(t, service, "user1")
	if _, err := service.TransitionPurchase(ctx, active.Id, models.PurchaseStatusActive, "admin", ""); err != nil {
		t.Fatalf("Transition to Active failed: %v", err)
	}
	if err := service.DeletePurchase(ctx, active.Id, "user1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition deleting Active purchase, got %v", err)
	}

	if err := service.DeletePurchase(ctx, "missing", "user1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAnnotatePurchase(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestOffer(t, service, "offer1")

	purchase := createTestPurchase(t, service, "user1")
	if _, err := service.TransitionPurchase(ctx, purchase.Id, models.PurchaseStatusActive, "admin", ""); err != nil {
		t.Fatalf("Transition to Active failed: %v", err)
	}
	if _, err := service.TransitionPurchase(ctx, purchase.Id, models.PurchaseStatusCompleted, "admin", ""); err != nil {
		t.Fatalf("Transition to Completed failed: %v", err)
	}

	// Notes stay editable after the purchase is terminal.
	if err := service.AnnotatePurchase(ctx, purchase.Id, "first tasting notes"); err != nil {
		t.Fatalf("AnnotatePurchase failed: %v", err)
	}
	annotated, err := service.GetPurchaseById(ctx, purchase.Id)
	if err != nil {
		t.Fatalf("GetPurchaseById failed: %v", err)
	}
	if annotated.Note != "first tasting notes" {
		t.Errorf("Expected note stored, got %q", annotated.Note)
	}

	if err := service.AnnotatePurchase(ctx, "missing", "note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeletePurchase_WrongOwner(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestUser(t, service, "user1", "CODE001")
	createTestUser(t, service, "user2", "CODE002")
	createTestOffer(t, service, "offer1")

	purchase := createTestPurchase(t, service, "user1")
	err := service.DeletePurchase(ctx, purchase.Id, "user2")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for wrong owner, got %v", err)
	}
	if _, err := service.GetPurchaseById(ctx, purchase.Id); err != nil {
		t.Errorf("Purchase should still exist: %v", err)
	}
}
