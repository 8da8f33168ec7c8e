// Package payment brokers Stripe Checkout sessions, refunds and webhooks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"rallysphere/internal/apperr"
	"rallysphere/internal/config"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Metadata keys attached to every checkout session and its payment intent.
const (
	MetaPurpose     = "purpose"
	MetaReferenceID = "reference_id"
	MetaUserID      = "user_id"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// zeroDecimal currencies are charged in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func ToMinorUnits(amount float64, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64, currency string) float64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return float64(amount)
	}
	return float64(amount) / 100
}

type sessionClient interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type refundClient interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// RefundRequest identifies the charge to reverse.
type RefundRequest struct {
	OrderID         string
	ClubID          string
	PaymentIntentID string
	Amount          float64
	Currency        string
}

// StripeGateway creates hosted checkout sessions and refunds.
type StripeGateway struct {
	sessions   sessionClient
	refunds    refundClient
	successURL string
	cancelURL  string
	currency   string
	log        *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{
		sessions:   sc.CheckoutSessions,
		refunds:    sc.Refunds,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		currency:   cfg.Currency,
		log:        log,
	}, nil
}

// CreateCheckoutSession opens a hosted Stripe Checkout page for req.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if req.Amount <= 0 {
		return nil, apperr.Invalid("price", "must be greater than 0")
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = g.currency
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	metadata := map[string]string{
		MetaPurpose:     req.Purpose,
		MetaReferenceID: req.ReferenceID,
		MetaUserID:      req.UserID,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.ReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(ToMinorUnits(req.Amount, currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(quantity),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for %s %s: %v", req.Purpose, req.ReferenceID, err))
		return nil, apperr.External("stripe", err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s for %s %s (%d x %.2f %s)", sess.ID, req.Purpose, req.ReferenceID, quantity, req.Amount, currency))
	return &models.CheckoutSession{ID: sess.ID, CheckoutURL: sess.URL}, nil
}

// Refund reverses the charge behind req.PaymentIntentID.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*models.Refund, error) {
	if req.PaymentIntentID == "" {
		return nil, apperr.Invalid("payment_intent_id", "order has no captured payment")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(ToMinorUnits(req.Amount, req.Currency))
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("club_id", req.ClubID)
	params.Context = ctx

	r, err := g.refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund for order %s failed: %v", req.OrderID, err))
		return nil, apperr.External("stripe", err)
	}

	currency := req.Currency
	if r.Currency != "" {
		currency = string(r.Currency)
	}
	g.log.Info("STRIPE", fmt.Sprintf("Refund %s for order %s: %s", r.ID, req.OrderID, r.Status))
	return &models.Refund{
		ID:           r.ID,
		RefundAmount: FromMinorUnits(r.Amount, currency),
		Status:       string(r.Status),
	}, nil
}

// Disabled stands in for Stripe when no secret key is configured. Free
// events keep working; every paid flow fails with a 502.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, models.CheckoutRequest) (*models.CheckoutSession, error) {
	return nil, apperr.External("stripe", ErrStripeClientInitFailed)
}

func (Disabled) Refund(context.Context, RefundRequest) (*models.Refund, error) {
	return nil, apperr.External("stripe", ErrStripeClientInitFailed)
}
