package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/bistro/internal/domain/menu"
)

const (
	menuColumns = `id, name, price, description, image`

	listMenuItemsSQL      = `SELECT ` + menuColumns + ` FROM menu_items ORDER BY id`
	getMenuItemSQL        = `SELECT ` + menuColumns + ` FROM menu_items WHERE id = ?`
	findMenuItemByNameSQL = `SELECT ` + menuColumns + ` FROM menu_items
		WHERE lower(name) = lower(?) ORDER BY id LIMIT 1`
	createMenuItemSQL = `INSERT INTO menu_items (name, price, description, image) VALUES (?, ?, ?, ?)`
	updateMenuItemSQL = `UPDATE menu_items SET name = ?, price = ?, description = ?, image = ? WHERE id = ?`
	deleteMenuItemSQL = `DELETE FROM menu_items WHERE id = ?`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository on SQLite.
type MenuRepository struct {
	db *sql.DB
}

// NewMenuRepository returns a MenuRepository that uses db.
func NewMenuRepository(db *sql.DB) *MenuRepository {
	return &MenuRepository{db: db}
}

// List returns the whole menu ordered by ID.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	rows, err := r.db.QueryContext(ctx, listMenuItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	defer rows.Close()

	items := []menu.Item{}
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("listing menu items: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Lookup returns a single menu item by its identifier.
func (r *MenuRepository) Lookup(ctx context.Context, id int64) (*menu.Item, error) {
	return queryMenuItem(ctx, r.db, getMenuItemSQL, id)
}

// FindByName returns the first menu item whose name matches case-insensitively.
func (r *MenuRepository) FindByName(ctx context.Context, name string) (*menu.Item, error) {
	return queryMenuItem(ctx, r.db, findMenuItemByNameSQL, name)
}

// Create inserts a new menu item and sets its ID.
func (r *MenuRepository) Create(ctx context.Context, item *menu.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, createMenuItemSQL,
		item.Name, item.Price.String(), item.Description, item.Image,
	)
	if err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("creating menu item %q: %w", item.Name, err)
	}
	item.ID = id
	return nil
}

// Update applies patch to the stored item in one transaction.
func (r *MenuRepository) Update(ctx context.Context, id int64, patch menu.Patch) (*menu.Item, error) {
	var updated menu.Item
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := queryMenuItem(ctx, tx, getMenuItemSQL, id)
		if err != nil {
			return err
		}

		updated = patch.Apply(*current)
		if err := updated.Validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, updateMenuItemSQL,
			updated.Name, updated.Price.String(), updated.Description, updated.Image, id,
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
	res, err := r.db.ExecContext(ctx, deleteMenuItemSQL, id)
	if err != nil {
		return fmt.Errorf("deleting menu item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting menu item %d: %w", id, err)
	}
	if n == 0 {
		return menu.ErrNotFound
	}
	return nil
}

func queryMenuItem(ctx context.Context, q querier, query string, arg any) (*menu.Item, error) {
	item, err := scanMenuItem(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, menu.ErrNotFound
		}
		return nil, fmt.Errorf("getting menu item %v: %w", arg, err)
	}
	return &item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMenuItem(s scanner) (menu.Item, error) {
	var item menu.Item
	err := s.Scan(&item.ID, &item.Name, &item.Price, &item.Description, &item.Image)
	return item, err
}
