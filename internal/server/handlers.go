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

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cask-ledger-go/internal/api"
	"cask-ledger-go/internal/gateway"
	"cask-ledger-go/internal/models"
	"cask-ledger-go/internal/webhook"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler wires the HTTP surface to the ledger service and the webhook
// reconciler.
type Handler struct {
	service       *api.LedgerService
	reconciler    *webhook.Reconciler
	webhookSecret string
}

func NewHandler(service *api.LedgerService, reconciler *webhook.Reconciler, webhookSecret string) *Handler {
	return &Handler{
		service:       service,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	user, err := h.service.RegisterUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", user)
}

func (h *Handler) listOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.DB().ListActiveOffers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", offers)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	purchase, err := h.service.CreatePurchase(r.Context(), userIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", purchase)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.service.DB().ListUserPurchases(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", purchases)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.service.DB().GetPurchaseById(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if purchase.UserId != userIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	}
	writeSuccess(w, http.StatusOK, "", purchase)
}

func (h *Handler) getPurchaseHistory(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.service.DB().GetPurchaseById(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if purchase.UserId != userIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	}
	history, err := h.service.DB().GetStatusHistory(r.Context(), purchase.Id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", history)
}

func (h *Handler) annotatePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	purchase, err := h.service.DB().GetPurchaseById(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if purchase.UserId != userIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	}
	if err := h.service.DB().AnnotatePurchase(r.Context(), purchase.Id, req.Note); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "note updated", nil)
}

func (h *Handler) deletePurchase(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeletePurchase(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "purchase deleted", nil)
}

func (h *Handler) updatePurchaseStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePurchaseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status "+string(req.Status))
		return
	}
	purchase, err := h.service.UpdatePurchaseStatus(r.Context(), chi.URLParam(r, "id"), req.Status, "admin", req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", purchase)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 20)
	balance, err := h.service.GetBalance(r.Context(), userIDFromContext(r.Context()), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", balance)
}

func (h *Handler) requestPayout(w http.ResponseWriter, r *http.Request) {
	var req models.PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	payout, err := h.service.RequestPayout(r.Context(), userIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", payout)
}

func (h *Handler) listPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.service.DB().ListUserPayouts(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", payouts)
}

func (h *Handler) createPayoutMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MethodType   string `json:"method_type"`
		Label        string `json:"label"`
		GatewayToken string `json:"gateway_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	method, err := h.service.DB().CreatePayoutMethod(r.Context(),
		userIDFromContext(r.Context()), req.MethodType, req.Label, req.GatewayToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "", method)
}

func (h *Handler) listPayoutMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.DB().ListUserPayoutMethods(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", methods)
}

func (h *Handler) payReferralReward(w http.ResponseWriter, r *http.Request) {
	referral, err := h.service.PayReferralReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", referral)
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	payment, err := h.service.RefundPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", payment)
}

func (h *Handler) listCompensationFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.service.DB().ListCompensationFailures(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", failures)
}

// handleGatewayWebhook verifies the HMAC signature over the raw body before
// anything is parsed, then hands the event to the reconciler. Both first
// delivery and duplicates return 200 so the gateway stops retrying.
func (h *Handler) handleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "unable to read request body")
		return
	}

	signature := strings.TrimSpace(r.Header.Get("X-Gateway-Signature"))
	if !gateway.VerifySignature(h.webhookSecret, body, signature) {
		zap.L().Warn("Webhook signature verification failed",
			zap.String("request_id", requestIDFromContext(r.Context())))
		writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}

	var event models.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.reconciler.Process(r.Context(), event); err != nil {
		zap.L().Error("Webhook processing failed",
			zap.String("event_id", event.EventId),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "processed", nil)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", nil)
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, "ready", nil)
}

func parseIntOrDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
