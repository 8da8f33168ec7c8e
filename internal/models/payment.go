package models

// Checkout purposes, carried in Stripe metadata so the webhook can route.
const (
	PurposeEventTicket = "event_ticket"
	PurposeStoreOrder  = "store_order"
)

type CheckoutRequest struct {
	Purpose     string
	ReferenceID string
	UserID      string
	Description string
	Amount      float64
	Currency    string
	Quantity    int64
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

type Refund struct {
	ID           string  `json:"id"`
	RefundAmount float64 `json:"refund_amount"`
	Status       string  `json:"status"`
}

// CompletedCheckout is what the payment webhook hands to the controllers.
type CompletedCheckout struct {
	SessionID       string
	PaymentIntentID string
	Purpose         string
	ReferenceID     string
	UserID          string
	AmountTotal     float64
}
