package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, status)
		VALUES ($1, $2) RETURNING id, created_at`

	createOrderItemSQL = `INSERT INTO order_items
		(order_id, position, menu_item_id, menu_item_name, menu_item_price, menu_item_image, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	getOrderSQL = `SELECT id, user_id, status, created_at FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, user_id, status, created_at FROM orders ORDER BY id`

	listOrderItemsSQL = `SELECT id, order_id, menu_item_id, menu_item_name, menu_item_price, menu_item_image, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`
)

// readTx is used for reads so an order and its items come from one snapshot.
var readTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order row and all item rows in a single transaction.
// Identifiers and the creation time are copied onto o only after commit.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	var (
		orderID   int64
		createdAt time.Time
		itemIDs   = make([]int64, len(o.Items))
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, createOrderSQL, o.UserID, string(o.Status)).Scan(&orderID, &createdAt); err != nil {
			return errors.Wrap(err, "insert order")
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(createOrderItemSQL,
				orderID, i, it.MenuItemID, it.MenuItemName, it.MenuItemPrice, it.MenuItemImage, it.Quantity,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range o.Items {
			if err := br.QueryRow().Scan(&itemIDs[i]); err != nil {
				_ = br.Close()
				return errors.Wrapf(err, "insert order item %d", i)
			}
		}
		return br.Close()
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
	var result []order.Order
	err := pgx.BeginTxFunc(ctx, r.pool, readTx, func(tx pgx.Tx) error {
		var err error
		result, err = loadOrders(ctx, tx, getOrderSQL, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	if len(result) == 0 {
		return nil, order.ErrNotFound
	}
	return &result[0], nil
}

// List returns all orders with their items, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	var result []order.Order
	err := pgx.BeginTxFunc(ctx, r.pool, readTx, func(tx pgx.Tx) error {
		var err error
		result, err = loadOrders(ctx, tx, listOrdersSQL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return result, nil
}

// loadOrders runs the order query and then fetches the items of every
// returned order with one more query.
func loadOrders(ctx context.Context, tx pgx.Tx, sql string, args ...any) ([]order.Order, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}

	rows, err = tx.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		i := byID[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.OrderItem, error) {
	var (
		it    order.OrderItem
		price decimal.Decimal
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.MenuItemName, &price, &it.MenuItemImage, &it.Quantity,
	)
	it.MenuItemPrice = price
	return it, err
}
