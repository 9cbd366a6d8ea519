package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/order"
)

const (
	createOrderSQL     = `INSERT INTO orders (user_id, status, created_at) VALUES (?, ?, ?)`
	createOrderItemSQL = `INSERT INTO order_items
		(order_id, position, menu_item_id, menu_item_name, menu_item_price, menu_item_image, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	orderColumns  = `id, user_id, status, created_at`
	getOrderSQL   = `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY id`

	itemColumns = `id, order_id, menu_item_id, menu_item_name, menu_item_price, menu_item_image, quantity`
	getItemsSQL = `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ? ORDER BY position`
	allItemsSQL = `SELECT ` + itemColumns + ` FROM order_items ORDER BY order_id, position`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on SQLite.
type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, now: time.Now}
}

// Create writes the order and all its items in one transaction.
// Identifiers and the creation time are copied onto o only after commit.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	var (
		orderID   int64
		createdAt = r.now().UTC()
		itemIDs   = make([]int64, len(o.Items))
	)
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, createOrderSQL, o.UserID, string(o.Status), createdAt.Format(timeLayout))
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		if orderID, err = res.LastInsertId(); err != nil {
			return errors.Wrap(err, "order id")
		}

		stmt, err := tx.PrepareContext(ctx, createOrderItemSQL)
		if err != nil {
			return errors.Wrap(err, "prepare item insert")
		}
		defer stmt.Close()

		for i, it := range o.Items {
			res, err := stmt.ExecContext(ctx,
				orderID, i, it.MenuItemID, it.MenuItemName, it.MenuItemPrice.String(), it.MenuItemImage, it.Quantity,
			)
			if err != nil {
				return errors.Wrapf(err, "insert order item %d", i)
			}
			if itemIDs[i], err = res.LastInsertId(); err != nil {
				return errors.Wrapf(err, "order item %d id", i)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating order for user %q: %w", o.UserID, err)
	}

	o.ID = orderID
	o.CreatedAt = createdAt
	for i := range o.Items {
		o.Items[i].ID = itemIDs[i]
		o.Items[i].OrderID = orderID
	}
	return nil
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	var o order.Order
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if o, err = scanOrder(tx.QueryRowContext(ctx, getOrderSQL, id)); err != nil {
			return err
		}
		items, err := queryItems(ctx, tx, getItemsSQL, id)
		if err != nil {
			return err
		}
		o.Items = items
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// List returns all orders with their items, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	orders := []order.Order{}
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listOrdersSQL)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return err
			}
			orders = append(orders, o)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		items, err := queryItems(ctx, tx, allItemsSQL)
		if err != nil {
			return err
		}
		byID := make(map[int64]int, len(orders))
		for i, o := range orders {
			byID[o.ID] = i
		}
		for _, it := range items {
			if i, ok := byID[it.OrderID]; ok {
				orders[i].Items = append(orders[i].Items, it)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]order.OrderItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []order.OrderItem
	for rows.Next() {
		var it order.OrderItem
		err := rows.Scan(
			&it.ID, &it.OrderID, &it.MenuItemID, &it.MenuItemName, &it.MenuItemPrice, &it.MenuItemImage, &it.Quantity,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(s scanner) (order.Order, error) {
	var (
		o         order.Order
		status    string
		createdAt string
	)
	if err := s.Scan(&o.ID, &o.UserID, &status, &createdAt); err != nil {
		return o, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return o, errors.Wrapf(err, "parse created_at of order %d", o.ID)
	}
	o.Status = order.Status(status)
	o.CreatedAt = t
	return o, nil
}
