package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderPickedUp   OrderStatus = "picked_up"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

type StoreItem struct {
	bun.BaseModel `bun:"table:store_items"`

	ID          string    `bun:"id,pk" json:"id"`
	ClubID      string    `bun:"club_id,notnull" json:"club_id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description"`
	Price       float64   `bun:"price" json:"price"`
	Currency    string    `bun:"currency" json:"currency"`
	Stock       int       `bun:"stock" json:"stock"`
	ImageURL    string    `bun:"image_url" json:"image_url,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                string      `bun:"id,pk" json:"id"`
	ItemID            string      `bun:"item_id,notnull" json:"item_id"`
	ClubID            string      `bun:"club_id,notnull" json:"club_id"`
	BuyerID           string      `bun:"buyer_id,notnull" json:"buyer_id"`
	Quantity          int         `bun:"quantity" json:"quantity"`
	Amount            float64     `bun:"amount" json:"amount"`
	Currency          string      `bun:"currency" json:"currency"`
	Status            OrderStatus `bun:"status,notnull" json:"status"`
	CheckoutSessionID string      `bun:"checkout_session_id" json:"checkout_session_id,omitempty"`
	PaymentIntentID   string      `bun:"payment_intent_id" json:"payment_intent_id,omitempty"`
	RefundAmount      float64     `bun:"refund_amount" json:"refund_amount,omitempty"`
	CreatedAt         time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time   `bun:"updated_at,nullzero" json:"updated_at"`
}

// OrderStatusMessage is published after every status change.
type OrderStatusMessage struct {
	OrderID    string      `json:"order_id"`
	ClubID     string      `json:"club_id"`
	BuyerID    string      `json:"buyer_id"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	Refunded   float64     `json:"refunded,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// StatusTotal aggregates a club's orders in one status.
type StatusTotal struct {
	Status   OrderStatus `bun:"status" json:"status"`
	Orders   int         `bun:"orders" json:"orders"`
	Revenue  float64     `bun:"revenue" json:"revenue"`
	Refunded float64     `bun:"refunded" json:"refunded"`
}
