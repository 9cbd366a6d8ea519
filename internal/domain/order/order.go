package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/menu"
)

// Status enumerates the order lifecycle states.
type Status string

// StatusPending is the state every order is created in.
const StatusPending Status = "Pending"

// Order is a customer order together with its line items. It is the unit of
// consistency: an order and its items are always written and read together.
type Order struct {
	ID        int64
	UserID    string
	Status    Status
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderItem is a single line of an order. The MenuItem* fields are a snapshot
// taken when the order was created and never follow later menu edits.
type OrderItem struct {
	ID            int64
	OrderID       int64
	MenuItemID    int64
	MenuItemName  string
	MenuItemPrice decimal.Decimal
	MenuItemImage string
	Quantity      int
}

// New returns a pending order for the given user with no items.
func New(userID string) *Order {
	return &Order{
		UserID: userID,
		Status: StatusPending,
	}
}

// AddItem snapshots item into a new line with the given quantity and appends
// it after the existing lines.
func (o *Order) AddItem(item menu.Item, quantity int) (*OrderItem, error) {
	if quantity < 1 {
		return nil, &InvalidQuantityError{MenuItemID: item.ID, Quantity: quantity}
	}

	o.Items = append(o.Items, OrderItem{
		OrderID:       o.ID,
		MenuItemID:    item.ID,
		MenuItemName:  item.Name,
		MenuItemPrice: item.Price,
		MenuItemImage: item.Image,
		Quantity:      quantity,
	})
	return &o.Items[len(o.Items)-1], nil
}

// Validate reports whether the order may be persisted.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range o.Items {
		if it.Quantity < 1 {
			return &InvalidQuantityError{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
		}
	}
	return nil
}

// View is the display representation of an order.
type View struct {
	ID        int64
	UserID    string
	Status    Status
	CreatedAt time.Time
	// Items is nil when the view was built without items.
	Items []ItemView
}

// ItemView is the display representation of an order line.
type ItemView struct {
	ID            int64
	MenuItemID    int64
	MenuItemName  string
	MenuItemPrice decimal.Decimal
	MenuItemImage string
	Quantity      int
}

// View builds the display representation. Line items are omitted unless
// includeItems is set.
func (o *Order) View(includeItems bool) View {
	v := View{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}
	if !includeItems {
		return v
	}

	v.Items = make([]ItemView, len(o.Items))
	for i, it := range o.Items {
		v.Items[i] = ItemView{
			ID:            it.ID,
			MenuItemID:    it.MenuItemID,
			MenuItemName:  it.MenuItemName,
			MenuItemPrice: it.MenuItemPrice,
			MenuItemImage: it.MenuItemImage,
			Quantity:      it.Quantity,
		}
	}
	return v
}

// Repository defines persistence operations for orders.
//
// Create writes the order and all of its items in a single transaction and
// fills in the store-assigned identifiers and creation time. Get and List
// always return orders with their items loaded.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context) ([]Order, error)
}
