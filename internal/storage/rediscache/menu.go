// Package rediscache provides a read-through Redis cache in front of the menu
// repository. Redis failures are logged and the call falls through to the
// wrapped repository.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/menu"
)

// DefaultTTL is used when Menu is created with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

var _ menu.Repository = (*Menu)(nil)

// Menu caches Lookup results and invalidates them on Update and Delete.
type Menu struct {
	menu.Repository

	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMenu wraps next with a cache stored under keys "<prefix>:menu:<id>".
func NewMenu(next menu.Repository, client *redis.Client, prefix string, ttl time.Duration) *Menu {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Menu{Repository: next, client: client, prefix: prefix, ttl: ttl}
}

func (m *Menu) key(id int64) string {
	return m.prefix + ":menu:" + strconv.FormatInt(id, 10)
}

// Lookup returns the cached item or loads it from the wrapped repository.
func (m *Menu) Lookup(ctx context.Context, id int64) (*menu.Item, error) {
	lg := zctx.From(ctx)

	raw, err := m.client.Get(ctx, m.key(id)).Bytes()
	switch {
	case err == nil:
		item, derr := decodeItem(raw)
		if derr == nil {
			return item, nil
		}
		lg.Warn("Dropping corrupt menu cache entry", zap.Int64("menu_item_id", id), zap.Error(derr))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Menu cache read failed", zap.Int64("menu_item_id", id), zap.Error(err))
	}

	item, err := m.Repository.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.client.Set(ctx, m.key(id), encodeItem(item), m.ttl).Err(); err != nil {
		lg.Warn("Menu cache write failed", zap.Int64("menu_item_id", id), zap.Error(err))
	}
	return item, nil
}

// Update updates the item and evicts its cache entry.
func (m *Menu) Update(ctx context.Context, id int64, patch menu.Patch) (*menu.Item, error) {
	item, err := m.Repository.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	m.evict(ctx, id)
	return item, nil
}

// Delete deletes the item and evicts its cache entry.
func (m *Menu) Delete(ctx context.Context, id int64) error {
	if err := m.Repository.Delete(ctx, id); err != nil {
		return err
	}
	m.evict(ctx, id)
	return nil
}

func (m *Menu) evict(ctx context.Context, id int64) {
	if err := m.client.Del(ctx, m.key(id)).Err(); err != nil {
		zctx.From(ctx).Warn("Menu cache eviction failed", zap.Int64("menu_item_id", id), zap.Error(err))
	}
}

func encodeItem(item *menu.Item) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(item.ID)
	e.FieldStart("name")
	e.Str(item.Name)
	e.FieldStart("price")
	e.Str(item.Price.String())
	e.FieldStart("description")
	e.Str(item.Description)
	e.FieldStart("image")
	e.Str(item.Image)
	e.ObjEnd()
	return e.Bytes()
}

func decodeItem(raw []byte) (*menu.Item, error) {
	var item menu.Item
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			item.ID, err = d.Int64()
		case "name":
			item.Name, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				item.Price, err = decimal.NewFromString(s)
			}
		case "description":
			item.Description, err = d.Str()
		case "image":
			item.Image, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached menu item")
	}
	if item.ID == 0 {
		return nil, errors.New("cached menu item has no id")
	}
	return &item, nil
}
