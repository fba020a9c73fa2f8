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

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"cask-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Error is a gateway-side failure. Retryable errors (5xx, transport) may be
// retried by callers; definitive rejections must not be.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsTimeout reports whether the outcome of a gateway call is unknown. The
// caller must not guess success or failure; the webhook resolves it.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// PayoutParams describes an outbound transfer to initiate.
type PayoutParams struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	DestToken      string
	UserId         string
}

// PayoutResult is the gateway's synchronous acceptance of a transfer.
type PayoutResult struct {
	Reference string              `json:"reference"`
	Status    models.PayoutStatus `json:"status"`
	Arrival   *time.Time          `json:"estimated_arrival,omitempty"`
}

// ChargeParams describes an inbound charge to initiate.
type ChargeParams struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	UserId         string
	PurchaseId     string
}

// ChargeResult is the gateway's synchronous acceptance of a charge.
type ChargeResult struct {
	Reference string               `json:"reference"`
	Status    models.PaymentStatus `json:"status"`
}

// RefundParams describes a refund against an earlier charge.
type RefundParams struct {
	Reference string
	Amount    decimal.Decimal
	Reason    string
}

type Service struct {
	client  *http.Client
	baseUrl string
	apiKey  string
}

func NewService(cfg models.GatewayConfig) (*Service, error) {
	if cfg.BaseUrl == "" {
		return nil, fmt.Errorf("gateway base url cannot be empty")
	}

	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Service{
		client:  httpClient,
		baseUrl: cfg.BaseUrl,
		apiKey:  cfg.ApiKey,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// InitiatePayout asks the gateway to start an outbound transfer. The
// idempotency key doubles as our reference until the gateway returns its
// own; the asynchronous payout.paid/payout.failed event finalizes the state.
func (s *Service) InitiatePayout(ctx context.Context, params PayoutParams) (*PayoutResult, error) {
	zap.L().Info("Initiating gateway payout",
		zap.String("idempotency_key", params.IdempotencyKey),
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()))

	body := map[string]string{
		"idempotency_key":   params.IdempotencyKey,
		"amount":            params.Amount.String(),
		"destination_token": params.DestToken,
	}

	var result PayoutResult
	if err := s.post(ctx, "/v1/payouts", body, &result); err != nil {
		return nil, err
	}
	if result.Status == "" {
		result.Status = models.PayoutStatusPending
	}
	return &result, nil
}

// Charge asks the gateway to collect an inbound payment.
func (s *Service) Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	zap.L().Info("Initiating gateway charge",
		zap.String("idempotency_key", params.IdempotencyKey),
		zap.String("purchase_id", params.PurchaseId),
		zap.String("amount", params.Amount.String()))

	body := map[string]string{
		"idempotency_key": params.IdempotencyKey,
		"amount":          params.Amount.String(),
	}

	var result ChargeResult
	if err := s.post(ctx, "/v1/charges", body, &result); err != nil {
		return nil, err
	}
	if result.Status == "" {
		result.Status = models.PaymentStatusPending
	}
	return &result, nil
}

// Refund asks the gateway to return funds to the original payment
// instrument. The internal balance ledger is not involved.
func (s *Service) Refund(ctx context.Context, params RefundParams) error {
	zap.L().Info("Initiating gateway refund",
		zap.String("reference", params.Reference),
		zap.String("amount", params.Amount.String()))

	body := map[string]string{
		"reference": params.Reference,
		"amount":    params.Amount.String(),
		"reason":    params.Reason,
	}
	return s.post(ctx, "/v1/refunds", body, nil)
}

func (s *Service) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("unable to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseUrl+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		gwErr := &Error{StatusCode: resp.StatusCode, Code: "gateway_error", Message: string(data)}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr == nil && parsed.Code != "" {
			gwErr.Code = parsed.Code
			gwErr.Message = parsed.Message
		}
		return gwErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unable to parse gateway response: %w", err)
		}
	}
	return nil
}
