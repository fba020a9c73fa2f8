package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cask-ledger-go/internal/database"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/notify"

	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	payoutErr    error
	payoutResult *gateway.PayoutResult
	chargeErr    error
	chargeResult *gateway.ChargeResult
	refundErr    error

	mu          sync.Mutex
	payoutCalls []gateway.PayoutParams
	chargeCalls []gateway.ChargeParams
	refundCalls []gateway.RefundParams
}

func (g *fakeGateway) InitiatePayout(_ context.Context, params gateway.PayoutParams) (*gateway.PayoutResult, error) {
	g.mu.Lock()
	g.payoutCalls = append(g.payoutCalls, params)
	g.mu.Unlock()
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	if g.payoutResult != nil {
		return g.payoutResult, nil
	}
	return &gateway.PayoutResult{Reference: "gw-" + params.IdempotencyKey, Status: models.PayoutStatusInTransit}, nil
}

func (g *fakeGateway) Charge(_ context.Context, params gateway.ChargeParams) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	g.chargeCalls = append(g.chargeCalls, params)
	g.mu.Unlock()
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.chargeResult != nil {
		return g.chargeResult, nil
	}
	return &gateway.ChargeResult{Reference: "gw-" + params.IdempotencyKey, Status: models.PaymentStatusProcessing}, nil
}

func (g *fakeGateway) Refund(_ context.Context, params gateway.RefundParams) error {
	g.mu.Lock()
	g.refundCalls = append(g.refundCalls, params)
	g.mu.Unlock()
	return g.refundErr
}

type nopNotifier struct{}

func (nopNotifier) Emit(notify.Event) {}

type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func setupServiceTest(t *testing.T, gw *fakeGateway) (*LedgerService, *database.Service, func()) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create database service: %v", err)
	}

	service := NewLedgerService(db, gw, nopNotifier{},
		models.GatewayConfig{Timeout: time.Second, ArrivalOffset: 48 * time.Hour},
		models.ReferralConfig{DefaultRewardAmount: decimal.NewFromInt(50)})

	cleanup := func() {
		db.Close()
	}
	return service, db, cleanup
}

func seedPayoutUser(t *testing.T, db *database.Service, balance int64) (userId, methodId string) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.CreateUser(ctx, "user1", "Test User", "test@example.com", "CODE001"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if balance > 0 {
		if _, err := db.Credit(ctx, "user1", decimal.NewFromInt(balance), models.ReasonAdjustment, "seed"); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
	}
	method, err := db.CreatePayoutMethod(ctx, "user1", "bank_account", "Main account", "tok_abc")
	if err != nil {
		t.Fatalf("CreatePayoutMethod failed: %v", err)
	}
	return "user1", method.Id
}

func TestRequestPayout_Success(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	userId, methodId := seedPayoutUser(t, db, 100)

	payout, err := service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.NewFromInt(60),
		PayoutMethodId: methodId,
	})
	if err != nil {
		t.Fatalf("RequestPayout failed: %v", err)
	}
	if payout.Status != models.PayoutStatusInTransit {
		t.Errorf("Expected in_transit, got %s", payout.Status)
	}
	if payout.GatewayReference == "" {
		t.Error("Expected gateway reference stored")
	}
	if len(gw.payoutCalls) != 1 {
		t.Fatalf("Expected one gateway call, got %d", len(gw.payoutCalls))
	}
	if gw.payoutCalls[0].DestToken != "tok_abc" {
		t.Errorf("Expected destination token forwarded, got %s", gw.payoutCalls[0].DestToken)
	}

	balance, _, _ := db.GetBalance(ctx, userId)
	if !balance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected balance 40, got %s", balance.String())
	}
}

func TestRequestPayout_InsufficientBalance(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	userId, methodId := seedPayoutUser(t, db, 30)

	_, err := service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.NewFromInt(50),
		PayoutMethodId: methodId,
	})
	if !errors.Is(err, database.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if len(gw.payoutCalls) != 0 {
		t.Errorf("Gateway must not be called when the hold fails, got %d calls", len(gw.payoutCalls))
	}
}

// A definitive synchronous rejection must leave the user's balance exactly
// where it started.
func TestRequestPayout_SyncFailureCompensates(t *testing.T) {
	gw := &fakeGateway{payoutErr: &gateway.Error{StatusCode: 422, Code: "invalid_destination", Message: "account closed"}}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	userId, methodId := seedPayoutUser(t, db, 100)

	_, err := service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.NewFromInt(60),
		PayoutMethodId: methodId,
	})
	if err == nil {
		t.Fatal("Expected payout rejection error")
	}

	balance, _, _ := db.GetBalance(ctx, userId)
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance restored to 100, got %s", balance.String())
	}

	payouts, err := db.ListUserPayouts(ctx, userId)
	if err != nil {
		t.Fatalf("ListUserPayouts failed: %v", err)
	}
	if len(payouts) != 1 || payouts[0].Status != models.PayoutStatusFailed {
		t.Errorf("Expected one failed payout, got %+v", payouts)
	}

	if err := db.ReconcileBalance(ctx, userId); err != nil {
		t.Errorf("Ledger out of balance after compensation: %v", err)
	}
}

// A timeout is an unknown outcome: the debit stands and the payout stays
// pending for the webhook to resolve.
func TestRequestPayout_TimeoutLeavesPending(t *testing.T) {
	gw := &fakeGateway{payoutErr: timeoutError{}}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	userId, methodId := seedPayoutUser(t, db, 100)

	payout, err := service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.NewFromInt(60),
		PayoutMethodId: methodId,
	})
	if err != nil {
		t.Fatalf("Timeout must not be an error to the caller: %v", err)
	}
	if payout.Status != models.PayoutStatusPending {
		t.Errorf("Expected pending, got %s", payout.Status)
	}

	balance, _, _ := db.GetBalance(ctx, userId)
	if !balance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected balance to stay debited at 40, got %s", balance.String())
	}
}

func TestSleepContext_CancelledContextReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if sleepContext(ctx, time.Minute) {
		t.Error("Expected false for cancelled context")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancelled sleep took %s, expected immediate return", elapsed)
	}

	if !sleepContext(context.Background(), time.Millisecond) {
		t.Error("Expected true when the duration elapses")
	}
}

func TestRequestPayout_MethodValidation(t *testing.T) {
	gw := &fakeGateway{}
	service, db, cleanup := setupServiceTest(t, gw)
	defer cleanup()

	ctx := context.Background()
	userId, methodId := seedPayoutUser(t, db, 100)

	if _, err := db.CreateUser(ctx, "user2", "Other User", "other@example.com", "CODE002"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	// Another user's method.
	_, err := service.RequestPayout(ctx, "user2", models.PayoutRequest{
		Amount:         decimal.NewFromInt(10),
		PayoutMethodId: methodId,
	})
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign method, got %v", err)
	}

	// Unknown method.
	_, err = service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.NewFromInt(10),
		PayoutMethodId: "missing",
	})
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown method, got %v", err)
	}

	// Non-positive amount.
	_, err = service.RequestPayout(ctx, userId, models.PayoutRequest{
		Amount:         decimal.Zero,
		PayoutMethodId: methodId,
	})
	if !errors.Is(err, database.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for zero amount, got %v", err)
	}
}
