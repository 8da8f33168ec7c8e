package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutListener receives checkout outcomes for one purpose.
type CheckoutListener interface {
	CheckoutCompleted(ctx context.Context, c models.CompletedCheckout) error
	CheckoutExpired(ctx context.Context, c models.CompletedCheckout) error
}

type WebhookRecorder interface {
	RecordWebhook(eventType, result string)
}

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// Webhooks verifies Stripe deliveries and routes checkout events to the
// listener registered for the session's purpose.
type Webhooks struct {
	Secret    string
	Listeners map[string]CheckoutListener
	Metrics   WebhookRecorder
	Logger    *logger.Logger
}

func NewWebhooks(secret string, m WebhookRecorder, log *logger.Logger) *Webhooks {
	return &Webhooks{
		Secret:    secret,
		Listeners: make(map[string]CheckoutListener),
		Metrics:   m,
		Logger:    log,
	}
}

// Register routes checkout sessions created with purpose to l.
func (w *Webhooks) Register(purpose string, l CheckoutListener) {
	w.Listeners[purpose] = l
}

// Handle verifies and processes one delivery. Every failure is a
// *WebhookError.
func (w *Webhooks) Handle(ctx context.Context, payload []byte, signature string) error {
	if w.Secret == "" {
		w.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.Secret, opts)
	if err != nil {
		w.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Invalid webhook signature: %v", err))
		w.Metrics.RecordWebhook("unknown", "rejected")
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Invalid webhook signature: %v", err),
			OriginalErr:   err,
		}
	}

	w.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s: %s", event.ID, event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		err = w.handleCheckout(ctx, event)
	default:
		w.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type %s", event.Type))
		w.Metrics.RecordWebhook(string(event.Type), "ignored")
		return nil
	}

	if err != nil {
		w.Metrics.RecordWebhook(string(event.Type), "failed")
		return err
	}
	w.Metrics.RecordWebhook(string(event.Type), "processed")
	return nil
}

func (w *Webhooks) handleCheckout(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		w.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	purpose := sess.Metadata[MetaPurpose]
	listener, ok := w.Listeners[purpose]
	if !ok || sess.Metadata[MetaReferenceID] == "" {
		w.Logger.Error("WEBHOOK", fmt.Sprintf("Checkout session %s has no routable metadata (purpose=%q)", sess.ID, purpose))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: fmt.Sprintf("checkout session %s has no routable metadata", sess.ID),
		}
	}

	completed := models.CompletedCheckout{
		SessionID:   sess.ID,
		Purpose:     purpose,
		ReferenceID: sess.Metadata[MetaReferenceID],
		UserID:      sess.Metadata[MetaUserID],
		AmountTotal: FromMinorUnits(sess.AmountTotal, string(sess.Currency)),
	}
	if sess.PaymentIntent != nil {
		completed.PaymentIntentID = sess.PaymentIntent.ID
	}

	var err error
	if event.Type == stripe.EventTypeCheckoutSessionCompleted {
		err = listener.CheckoutCompleted(ctx, completed)
	} else {
		err = listener.CheckoutExpired(ctx, completed)
	}
	if err != nil {
		w.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to apply %s for %s %s: %v", event.Type, purpose, completed.ReferenceID, err))
		var werr *WebhookError
		if errors.As(err, &werr) {
			return werr
		}
		// 5xx makes Stripe retry the delivery.
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("apply %s for %s: %v", event.Type, completed.ReferenceID, err),
			OriginalErr:   err,
		}
	}

	w.Logger.Info("WEBHOOK", fmt.Sprintf("Applied %s for %s %s", event.Type, purpose, completed.ReferenceID))
	return nil
}
