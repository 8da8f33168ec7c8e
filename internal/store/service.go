// Package store is the club store controller: item catalogue, order
// placement through Stripe Checkout and the order status lifecycle.
package store

import (
	"context"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/config"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"rallysphere/internal/payment"
	"rallysphere/internal/validation"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrOutOfStock = apperr.New(http.StatusConflict, "alert.out_of_stock", "not enough stock left for this item")

type DBLayer interface {
	GetItem(ctx context.Context, id string) (*models.StoreItem, error)
	ListItems(ctx context.Context, clubID string) ([]models.StoreItem, error)
	CreateItem(ctx context.Context, item *models.StoreItem) error
	AdjustStock(ctx context.Context, itemID string, delta int) (bool, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SetCheckoutSession(ctx context.Context, orderID, sessionID string) error
	RecordPayment(ctx context.Context, orderID, paymentIntentID string) error
	TransitionOrder(ctx context.Context, order *models.Order, from models.OrderStatus) (bool, error)
	ListOrdersByClub(ctx context.Context, clubID string) ([]models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
}

type ClubDirectory interface {
	GetClub(ctx context.Context, id string) (*models.Club, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	Refund(ctx context.Context, req payment.RefundRequest) (*models.Refund, error)
}

type KafkaPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

type Recorder interface {
	RecordOrderTransition(from, to string)
}

type Service struct {
	DB       DBLayer
	Clubs    ClubDirectory
	Payments PaymentGateway
	Kafka    KafkaPublisher
	Metrics  Recorder
	Topics   config.TopicConfig
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

// PlacedOrder is a pending order plus the checkout page that pays for it.
type PlacedOrder struct {
	Order    *models.Order           `json:"order"`
	Checkout *models.CheckoutSession `json:"checkout"`
}

// CreateItem adds an item to a club's store. Club admins only.
func (s *Service) CreateItem(ctx context.Context, session models.Session, clubID string, form CreateItemForm) (*models.StoreItem, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	club, err := s.authorizeAdmin(ctx, session, clubID)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(form.Currency)
	if currency == "" {
		currency = club.Currency
	}
	if currency == "" {
		currency = s.Currency
	}
	item := &models.StoreItem{
		ID:          uuid.NewString(),
		ClubID:      club.ID,
		Name:        strings.TrimSpace(form.Name),
		Description: form.Description,
		Price:       form.Price,
		Currency:    currency,
		Stock:       form.Stock,
		ImageURL:    form.ImageURL,
		CreatedAt:   s.Now(),
	}
	if err := s.DB.CreateItem(ctx, item); err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Insert of item %q in club %s failed: %v", item.Name, club.ID, err))
		return nil, apperr.External("database", err)
	}

	s.Logger.Info("STORE", fmt.Sprintf("Item %s (%q) added to club %s by %s", item.ID, item.Name, club.ID, session.UserID))
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, clubID string) ([]models.StoreItem, error) {
	items, err := s.DB.ListItems(ctx, clubID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	return items, nil
}

// PlaceOrder reserves stock, stores a pending order and opens a checkout
// session for it. Every step is undone if a later one fails.
func (s *Service) PlaceOrder(ctx context.Context, session models.Session, form PlaceOrderForm) (*PlacedOrder, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}

	item, err := s.DB.GetItem(ctx, form.ItemID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	if item.Stock < form.Quantity {
		return nil, ErrOutOfStock
	}
	ok, err := s.DB.AdjustStock(ctx, item.ID, -form.Quantity)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	if !ok {
		return nil, ErrOutOfStock
	}

	now := s.Now()
	order := &models.Order{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		ClubID:    item.ClubID,
		BuyerID:   session.UserID,
		Quantity:  form.Quantity,
		Amount:    item.Price * float64(form.Quantity),
		Currency:  item.Currency,
		Status:    models.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.DB.CreateOrder(ctx, order); err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Insert of order for item %s failed: %v", item.ID, err))
		s.restock(ctx, item.ID, form.Quantity)
		return nil, apperr.External("database", err)
	}

	checkout, err := s.Payments.CreateCheckoutSession(ctx, models.CheckoutRequest{
		Purpose:     models.PurposeStoreOrder,
		ReferenceID: order.ID,
		UserID:      session.UserID,
		Description: item.Name,
		Amount:      item.Price,
		Currency:    item.Currency,
		Quantity:    int64(form.Quantity),
		Metadata:    map[string]string{"club_id": item.ClubID, "item_id": item.ID},
	})
	if err != nil {
		s.Logger.Warn("STORE", fmt.Sprintf("Checkout for order %s failed, cancelling: %v", order.ID, err))
		if _, cerr := s.apply(ctx, order, models.OrderCancelled, session.UserID); cerr != nil {
			s.Logger.Error("STORE", fmt.Sprintf("Could not cancel unpaid order %s: %v", order.ID, cerr))
		}
		return nil, err
	}

	if err := s.DB.SetCheckoutSession(ctx, order.ID, checkout.ID); err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Storing checkout session for order %s failed: %v", order.ID, err))
		return nil, apperr.External("database", err)
	}
	order.CheckoutSessionID = checkout.ID

	s.Logger.LogOrder("PLACED", order.ID, fmt.Sprintf("by %s: %d x %s", session.UserID, order.Quantity, item.Name))
	s.publish(ctx, order, "")
	return &PlacedOrder{Order: order, Checkout: checkout}, nil
}

// RecordPayment stores the payment intent that paid for an order. Replays
// of the same intent are ignored.
func (s *Service) RecordPayment(ctx context.Context, orderID, paymentIntentID string) error {
	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return apperr.External("database", err)
	}
	if order.PaymentIntentID == paymentIntentID {
		return nil
	}
	if order.Status != models.OrderPending {
		s.Logger.Warn("STORE", fmt.Sprintf("Payment %s arrived for order %s in status %s", paymentIntentID, order.ID, order.Status))
	}
	if err := s.DB.RecordPayment(ctx, order.ID, paymentIntentID); err != nil {
		return apperr.External("database", err)
	}
	s.Logger.LogOrder("PAID", order.ID, "payment intent "+paymentIntentID)
	return nil
}

// CheckoutCompleted is called by the payment webhook for store orders.
func (s *Service) CheckoutCompleted(ctx context.Context, c models.CompletedCheckout) error {
	return s.RecordPayment(ctx, c.ReferenceID, c.PaymentIntentID)
}

// CheckoutExpired cancels the unpaid order and returns its stock.
func (s *Service) CheckoutExpired(ctx context.Context, c models.CompletedCheckout) error {
	order, err := s.DB.GetOrder(ctx, c.ReferenceID)
	if err != nil {
		return apperr.External("database", err)
	}
	if order.Status != models.OrderPending || order.PaymentIntentID != "" {
		return nil
	}
	_, err = s.apply(ctx, order, models.OrderCancelled, "checkout-expired")
	return err
}

// UpdateStatus moves an order along its lifecycle. Club admins only. A
// refund goes through the payment gateway before anything is stored.
func (s *Service) UpdateStatus(ctx context.Context, session models.Session, orderID string, form UpdateStatusForm) (*models.Order, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	if !Known(form.Status) {
		return nil, apperr.Invalid("status", "unknown order status")
	}

	order, err := s.DB.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	if _, err := s.authorizeAdmin(ctx, session, order.ClubID); err != nil {
		return nil, err
	}
	return s.apply(ctx, order, form.Status, session.UserID)
}

func (s *Service) ListClubOrders(ctx context.Context, session models.Session, clubID string) ([]models.Order, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	if _, err := s.authorizeAdmin(ctx, session, clubID); err != nil {
		return nil, err
	}
	orders, err := s.DB.ListOrdersByClub(ctx, clubID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	return orders, nil
}

func (s *Service) ListMyOrders(ctx context.Context, session models.Session) ([]models.Order, error) {
	if !session.Valid() {
		return nil, apperr.ErrUnauthorized
	}
	orders, err := s.DB.ListOrdersByBuyer(ctx, session.UserID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	return orders, nil
}

func (s *Service) apply(ctx context.Context, order *models.Order, to models.OrderStatus, actor string) (*models.Order, error) {
	from := order.Status
	if err := CheckTransition(from, to); err != nil {
		return nil, err
	}

	next := *order
	next.Status = to
	next.UpdatedAt = s.Now()

	if to == models.OrderRefunded {
		refund, err := s.Payments.Refund(ctx, payment.RefundRequest{
			OrderID:         order.ID,
			ClubID:          order.ClubID,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          order.Amount,
			Currency:        order.Currency,
		})
		if err != nil {
			s.Logger.Error("STORE", fmt.Sprintf("Refund of order %s failed, status kept at %s: %v", order.ID, from, err))
			return nil, err
		}
		next.RefundAmount = refund.RefundAmount
	}

	ok, err := s.DB.TransitionOrder(ctx, &next, from)
	if err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Writing status %s for order %s failed: %v", to, order.ID, err))
		return nil, apperr.External("database", err)
	}
	if !ok {
		return nil, &TransitionError{From: from, To: to}
	}

	if releasesStock(to) {
		s.restock(ctx, order.ItemID, order.Quantity)
	}

	s.Logger.LogOrder(strings.ToUpper(string(to)), order.ID, fmt.Sprintf("%s → %s by %s", from, to, actor))
	s.publish(ctx, &next, from)
	s.Metrics.RecordOrderTransition(string(from), string(to))
	return &next, nil
}

func (s *Service) restock(ctx context.Context, itemID string, quantity int) {
	if _, err := s.DB.AdjustStock(ctx, itemID, quantity); err != nil {
		s.Logger.Error("STORE", fmt.Sprintf("Restoring %d units of item %s failed: %v", quantity, itemID, err))
	}
}

func (s *Service) publish(ctx context.Context, order *models.Order, from models.OrderStatus) {
	msg := models.OrderStatusMessage{
		OrderID:    order.ID,
		ClubID:     order.ClubID,
		BuyerID:    order.BuyerID,
		From:       from,
		To:         order.Status,
		Refunded:   order.RefundAmount,
		OccurredAt: order.UpdatedAt,
	}
	if err := s.Kafka.PublishJSON(ctx, s.Topics.OrderStatus, order.ID, msg); err != nil {
		s.Logger.LogKafka("PUBLISH_FAILED", s.Topics.OrderStatus, fmt.Sprintf("order %s: %v", order.ID, err))
	}
}

func (s *Service) authorizeAdmin(ctx context.Context, session models.Session, clubID string) (*models.Club, error) {
	club, err := s.Clubs.GetClub(ctx, clubID)
	if err != nil {
		return nil, apperr.External("database", err)
	}
	if !club.IsAdmin(session.UserID) {
		s.Logger.LogSecurity("STORE_ADMIN_DENIED", fmt.Sprintf("user %s on club %s", session.UserID, clubID))
		return nil, apperr.ErrForbidden
	}
	return club, nil
}
