package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/menu"
)

func TestNew(t *testing.T) {
	o := New("42")

	assert.Equal(t, "42", o.UserID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Empty(t, o.Items)
	assert.ErrorIs(t, o.Validate(), ErrNoItems)
}

func TestAddItem(t *testing.T) {
	o := New("42")
	burger := menu.Item{ID: 1, Name: "Burger", Price: decimal.RequireFromString("8.50"), Image: "b.jpg"}

	it, err := o.AddItem(burger, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), it.MenuItemID)
	assert.Equal(t, "Burger", it.MenuItemName)
	assert.Equal(t, "b.jpg", it.MenuItemImage)
	assert.Equal(t, 2, it.Quantity)

	// Changing the source item afterwards does not reach the snapshot.
	burger.Name = "Renamed"
	assert.Equal(t, "Burger", o.Items[0].MenuItemName)

	_, err = o.AddItem(burger, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Len(t, o.Items, 1)
	assert.NoError(t, o.Validate())
}

func TestView(t *testing.T) {
	o := New("42")
	o.ID = 5
	_, err := o.AddItem(menu.Item{ID: 1, Name: "Burger", Price: decimal.RequireFromString("8.50")}, 1)
	require.NoError(t, err)

	withItems := o.View(true)
	assert.Equal(t, int64(5), withItems.ID)
	assert.Equal(t, StatusPending, withItems.Status)
	require.Len(t, withItems.Items, 1)
	assert.Equal(t, "Burger", withItems.Items[0].MenuItemName)

	withoutItems := o.View(false)
	assert.Nil(t, withoutItems.Items)
	assert.Equal(t, "42", withoutItems.UserID)
}
