package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/menu"
)

const (
	listMenuItemsSQL = `SELECT id, name, price, description, image
		FROM menu_items ORDER BY id`

	getMenuItemSQL = `SELECT id, name, price, description, image
		FROM menu_items WHERE id = $1`

	findMenuItemByNameSQL = `SELECT id, name, price, description, image
		FROM menu_items WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`

	createMenuItemSQL = `INSERT INTO menu_items (name, price, description, image)
		VALUES ($1, $2, $3, $4) RETURNING id`

	updateMenuItemSQL = `UPDATE menu_items SET name = $2, price = $3, description = $4, image = $5
		WHERE id = $1`

	deleteMenuItemSQL = `DELETE FROM menu_items WHERE id = $1`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns the whole menu ordered by ID.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

// Lookup returns a single menu item by its identifier.
func (r *MenuRepository) Lookup(ctx context.Context, id int64) (*menu.Item, error) {
	return r.queryOne(ctx, getMenuItemSQL, id)
}

// FindByName returns the first menu item whose name matches case-insensitively.
func (r *MenuRepository) FindByName(ctx context.Context, name string) (*menu.Item, error) {
	return r.queryOne(ctx, findMenuItemByNameSQL, name)
}

func (r *MenuRepository) queryOne(ctx context.Context, sql string, arg any) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting menu item %v: %w", arg, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %v: %w", arg, err)
	}
	return &item, nil
}

// Create inserts a new menu item and sets its ID.
func (r *MenuRepository) Create(ctx context.Context, item *menu.Item) error {
	err := r.pool.QueryRow(ctx, createMenuItemSQL,
		item.Name, item.Price, item.Description, item.Image,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.Name, err)
	}
	return nil
}

// Update applies patch to the stored item inside a transaction that locks the row.
func (r *MenuRepository) Update(ctx context.Context, id int64, patch menu.Patch) (*menu.Item, error) {
	var updated menu.Item
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getMenuItemSQL+" FOR UPDATE", id)
		if err != nil {
			return err
		}
		current, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return menu.ErrNotFound
			}
			return err
		}

		updated = patch.Apply(current)
		if err := updated.Validate(); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, updateMenuItemSQL,
			id, updated.Name, updated.Price, updated.Description, updated.Image,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) || errors.Is(err, menu.ErrInvalidItem) {
			return nil, err
		}
		return nil, fmt.Errorf("updating menu item %d: %w", id, err)
	}
	return &updated, nil
}

// Delete removes a menu item. Existing order snapshots are unaffected.
func (r *MenuRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteMenuItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting menu item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrNotFound
	}
	return nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var (
		item  menu.Item
		price decimal.Decimal
	)
	err := row.Scan(&item.ID, &item.Name, &price, &item.Description, &item.Image)
	item.Price = price
	return item, err
}
