package db

import (
	"context"
	"database/sql"
	"errors"
	"rallysphere/internal/apperr"
	"rallysphere/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ITEMS ----------------

// GetItem → fetch one store item by its ID
func (d *DB) GetItem(ctx context.Context, id string) (*models.StoreItem, error) {
	var item models.StoreItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems → every item of a club, by name
func (d *DB) ListItems(ctx context.Context, clubID string) ([]models.StoreItem, error) {
	items := []models.StoreItem{}
	err := d.Bun.NewSelect().
		Model(&items).
		Where("club_id = ?", clubID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateItem → insert new item
func (d *DB) CreateItem(ctx context.Context, item *models.StoreItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

// AdjustStock → add delta to the stock unless that would take it below zero.
// Reports false when nothing was changed.
func (d *DB) AdjustStock(ctx context.Context, itemID string, delta int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.StoreItem)(nil)).
		Set("stock = stock + ?", delta).
		Where("id = ?", itemID).
		Where("stock + ? >= 0", delta).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ---------------- ORDERS ----------------

// GetOrder → fetch one order by its ID
func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder → insert new order
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// SetCheckoutSession → remember the Stripe session paying for an order
func (d *DB) SetCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("checkout_session_id = ?", sessionID).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// RecordPayment → store the payment intent of a completed checkout
func (d *DB) RecordPayment(ctx context.Context, orderID, paymentIntentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_intent_id = ?", paymentIntentID).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// TransitionOrder → write status, refund and timestamp only if the stored
// status is still from. Reports false when another writer got there first.
func (d *DB) TransitionOrder(ctx context.Context, order *models.Order, from models.OrderStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("status", "refund_amount", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOrdersByClub → a club's orders, newest first
func (d *DB) ListOrdersByClub(ctx context.Context, clubID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("club_id = ?", clubID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrdersByBuyer → a buyer's orders across clubs, newest first
func (d *DB) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- AGGREGATES ----------------

// OrderTotals → order count, revenue and refunds per status for one club
func (d *DB) OrderTotals(ctx context.Context, clubID string) ([]models.StatusTotal, error) {
	totals := []models.StatusTotal{}
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(amount), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(refund_amount), 0) AS refunded").
		Where("club_id = ?", clubID).
		Group("status").
		Order("status ASC").
		Scan(ctx, &totals)
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
