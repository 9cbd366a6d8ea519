package menu

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested menu item does not exist.
	ErrNotFound = errors.New("menu item not found")
	// ErrInvalidItem is returned when a menu item misses its name or has a
	// negative price.
	ErrInvalidItem = errors.New("invalid menu item")
)

// Item represents a dish or drink available for ordering.
type Item struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Description string
	Image       string
}

// Validate checks the fields every stored menu item must satisfy.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.Wrap(ErrInvalidItem, "name is required")
	}
	if i.Price.IsNegative() {
		return errors.Wrap(ErrInvalidItem, "price must not be negative")
	}
	return nil
}

// Patch holds optional changes applied by Update. Nil fields are left as is.
type Patch struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	Image       *string
}

// Apply returns a copy of item with the patch applied.
func (p Patch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Image != nil {
		item.Image = *p.Image
	}
	return item
}

// Catalog resolves menu items at order-creation time.
type Catalog interface {
	Lookup(ctx context.Context, id int64) (*Item, error)
}

// Repository defines the menu-management operations on top of Catalog.
type Repository interface {
	Catalog

	List(ctx context.Context) ([]Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, id int64, patch Patch) (*Item, error)
	Delete(ctx context.Context, id int64) error
	FindByName(ctx context.Context, name string) (*Item, error)
}
