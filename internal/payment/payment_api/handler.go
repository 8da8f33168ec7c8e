package payment_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"rallysphere/internal/logger"
	"rallysphere/internal/payment"
)

// maxWebhookBytes bounds a Stripe delivery body.
const maxWebhookBytes = 65536

type Handler struct {
	Webhooks *payment.Webhooks
	Logger   *logger.Logger
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to read payload: %v", err))
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	err = h.Webhooks.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))

		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.Logger.Info("API", "StripeWebhook: successfully processed webhook event")
}
