package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/storage"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseItem(t *testing.T) {
	item, err := parseItem([]byte(`{"name":" Soup ","price":"4.5","description":"Hot","image":"soup.png","extra":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, "Soup", item.Name)
	assert.True(t, decimal.RequireFromString("4.50").Equal(item.Price))
	assert.Equal(t, "Hot", item.Description)
	assert.Equal(t, "soup.png", item.Image)

	item, err = parseItem([]byte(`{"name":"Tea","price":2}`))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(item.Price))

	_, err = parseItem([]byte(`{"name":`))
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	existing := menu.Item{Name: "Burger", Price: decimal.NewFromInt(9)}
	require.NoError(t, store.Menu.Create(ctx, &existing))

	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "menu1.ndjson.gz",
			`{"name":"Soup","price":"4.50"}`,
			`{"name":"burger","price":"8.00"}`,
			``,
			`not json`,
		),
		writeGz(t, dir, "menu2.ndjson.gz",
			`{"name":"Salad","price":6}`,
			`{"name":"SOUP","price":"4.75"}`,
			`{"name":"","price":1}`,
			`{"name":"Free lunch","price":-1}`,
		),
	}

	stats, err := ingest(ctx, store.Menu, files)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.parsed)
	assert.Equal(t, 2, stats.created)
	assert.Equal(t, 2, stats.duplicates)
	assert.Equal(t, int64(3), stats.invalid.Load())

	items, err := store.Menu.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, strings.ToLower(it.Name))
	}
	assert.ElementsMatch(t, []string{"burger", "soup", "salad"}, names)

	// A second run adds nothing.
	stats, err = ingest(ctx, store.Menu, files)
	require.NoError(t, err)
	assert.Zero(t, stats.created)
	assert.Equal(t, 4, stats.duplicates)
}

func TestIngest_MissingFile(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = ingest(ctx, store.Menu, []string{filepath.Join(t.TempDir(), "missing.gz")})
	assert.Error(t, err)
}
