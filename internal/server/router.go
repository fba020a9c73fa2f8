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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter assembles the HTTP surface. The webhook endpoint sits outside
// /v1 and outside user auth: the gateway authenticates with its signature,
// not a principal header.
func NewRouter(handler *Handler, adminKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Post("/webhooks/payment-gateway", handler.handleGatewayWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", handler.registerUser)
		r.Get("/offers", handler.listOffers)

		r.Group(func(r chi.Router) {
			r.Use(userAuthMiddleware)
			r.Post("/purchases", handler.createPurchase)
			r.Get("/purchases", handler.listPurchases)
			r.Get("/purchases/{id}", handler.getPurchase)
			r.Get("/purchases/{id}/history", handler.getPurchaseHistory)
			r.Put("/purchases/{id}/note", handler.annotatePurchase)
			r.Delete("/purchases/{id}", handler.deletePurchase)

			r.Get("/balance", handler.getBalance)
			r.Post("/payouts", handler.requestPayout)
			r.Get("/payouts", handler.listPayouts)
			r.Post("/payout-methods", handler.createPayoutMethod)
			r.Get("/payout-methods", handler.listPayoutMethods)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(adminKey))
			r.Put("/purchases/{id}/status", handler.updatePurchaseStatus)
			r.Post("/referrals/{id}/pay-reward", handler.payReferralReward)
			r.Post("/payments/{id}/refund", handler.refundPayment)
			r.Get("/compensation-failures", handler.listCompensationFailures)
		})
	})
	return r
}
