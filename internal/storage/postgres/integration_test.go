//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bistro",
				"POSTGRES_PASSWORD": "bistro",
				"POSTGRES_DB":       "bistro",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://bistro:bistro@%s:%s/bistro?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	return m.Run()
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE order_items, orders, menu_items, users, api_keys RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func seedMenu(t *testing.T, repo *MenuRepository, items ...menu.Item) []menu.Item {
	t.Helper()
	out := make([]menu.Item, len(items))
	for i, it := range items {
		require.NoError(t, repo.Create(context.Background(), &it))
		out[i] = it
	}
	return out
}

func TestMenuRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewMenuRepository(testPool)

	seeded := seedMenu(t, repo,
		menu.Item{Name: "Burger", Price: decimal.RequireFromString("9.99"), Image: "burger.png"},
		menu.Item{Name: "Fries", Price: decimal.RequireFromString("3.50")},
	)

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Burger", items[0].Name)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("9.99")))

	got, err := repo.Lookup(ctx, seeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Fries", got.Name)

	_, err = repo.Lookup(ctx, 999)
	assert.ErrorIs(t, err, menu.ErrNotFound)

	byName, err := repo.FindByName(ctx, "burger")
	require.NoError(t, err)
	assert.Equal(t, seeded[0].ID, byName.ID)

	price := decimal.RequireFromString("10.49")
	updated, err := repo.Update(ctx, seeded[0].ID, menu.Patch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Burger", updated.Name)
	assert.True(t, updated.Price.Equal(price))

	empty := " "
	_, err = repo.Update(ctx, seeded[0].ID, menu.Patch{Name: &empty})
	assert.ErrorIs(t, err, menu.ErrInvalidItem)

	_, err = repo.Update(ctx, 999, menu.Patch{Price: &price})
	assert.ErrorIs(t, err, menu.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, seeded[1].ID))
	assert.ErrorIs(t, repo.Delete(ctx, seeded[1].ID), menu.ErrNotFound)
}

func TestOrderRepository_CreateAndRead(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	menus := NewMenuRepository(testPool)
	orders := NewOrderRepository(testPool)
	svc := order.NewService(menus, orders)

	seeded := seedMenu(t, menus,
		menu.Item{Name: "Burger", Price: decimal.RequireFromString("9.99"), Image: "burger.png"},
		menu.Item{Name: "Fries", Price: decimal.RequireFromString("3.50")},
		menu.Item{Name: "Cola", Price: decimal.RequireFromString("1.75")},
	)

	created, err := svc.Create(ctx, "user-1", []order.Line{
		order.NewLine(seeded[2].ID, 1),
		order.NewLine(seeded[0].ID, 2),
		order.NewLine(seeded[1].ID, 1),
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
	assert.Equal(t, order.StatusPending, got.Status)
	require.Len(t, got.Items, 3)

	// Items come back in submission order with their snapshots intact.
	wantNames := []string{"Cola", "Burger", "Fries"}
	for i, it := range got.Items {
		assert.Equal(t, wantNames[i], it.MenuItemName)
		assert.Equal(t, created.Items[i].ID, it.ID)
		assert.Equal(t, created.ID, it.OrderID)
		assert.True(t, it.MenuItemPrice.Equal(created.Items[i].MenuItemPrice))
	}
	assert.Equal(t, 2, got.Items[1].Quantity)
	assert.Equal(t, "burger.png", got.Items[1].MenuItemImage)
}

func TestOrderRepository_SnapshotSurvivesMenuChanges(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	menus := NewMenuRepository(testPool)
	svc := order.NewService(menus, NewOrderRepository(testPool))

	seeded := seedMenu(t, menus, menu.Item{Name: "Burger", Price: decimal.RequireFromString("9.99")})

	created, err := svc.Create(ctx, "user-1", []order.Line{order.NewLine(seeded[0].ID, 1)})
	require.NoError(t, err)

	name := "Deluxe Burger"
	price := decimal.RequireFromString("14.00")
	_, err = menus.Update(ctx, seeded[0].ID, menu.Patch{Name: &name, Price: &price})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Burger", got.Items[0].MenuItemName)
	assert.True(t, got.Items[0].MenuItemPrice.Equal(decimal.RequireFromString("9.99")))

	require.NoError(t, menus.Delete(ctx, seeded[0].ID))

	got, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, seeded[0].ID, got.Items[0].MenuItemID)
}

func TestOrderRepository_FailedCreateLeavesNothing(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	menus := NewMenuRepository(testPool)
	svc := order.NewService(menus, NewOrderRepository(testPool))

	seeded := seedMenu(t, menus, menu.Item{Name: "Burger", Price: decimal.RequireFromString("9.99")})

	_, err := svc.Create(ctx, "user-1", []order.Line{
		order.NewLine(seeded[0].ID, 1),
		order.NewLine(999, 1),
	})
	var notFound *order.MenuItemNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(999), notFound.MenuItemID)

	var orderRows, itemRows int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&orderRows))
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM order_items`).Scan(&itemRows))
	assert.Zero(t, orderRows)
	assert.Zero(t, itemRows)
}

func TestOrderRepository_ListAndNotFound(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	menus := NewMenuRepository(testPool)
	orders := NewOrderRepository(testPool)
	svc := order.NewService(menus, orders)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, 42)
	assert.ErrorIs(t, err, order.ErrNotFound)

	seeded := seedMenu(t, menus, menu.Item{Name: "Soup", Price: decimal.RequireFromString("4.20")})
	for _, user := range []string{"a", "b"} {
		_, err := svc.Create(ctx, user, []order.Line{order.NewLine(seeded[0].ID, 1)})
		require.NoError(t, err)
	}

	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].UserID)
	assert.Equal(t, "b", list[1].UserID)
	for _, o := range list {
		assert.Len(t, o.Items, 1)
	}
}

func TestOrderRepository_CascadeDelete(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	menus := NewMenuRepository(testPool)
	svc := order.NewService(menus, NewOrderRepository(testPool))

	seeded := seedMenu(t, menus, menu.Item{Name: "Soup", Price: decimal.RequireFromString("4.20")})
	created, err := svc.Create(ctx, "a", []order.Line{order.NewLine(seeded[0].ID, 3)})
	require.NoError(t, err)

	_, err = testPool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, created.ID)
	require.NoError(t, err)

	var itemRows int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM order_items`).Scan(&itemRows))
	assert.Zero(t, itemRows)
}

func TestUserAndAPIKeyRepositories(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := NewUserRepository(testPool)
	keys := NewAPIKeyRepository(testPool)

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	u := &auth.User{Username: "admin", Email: "admin@example.com", PasswordHash: hash, Role: "admin"}
	require.NoError(t, users.Create(ctx, u))
	require.NotZero(t, u.ID)

	authn := auth.NewAuthenticator(users)
	got, err := authn.Verify(ctx, "admin@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Role)

	_, err = authn.Verify(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	pepper := []byte("pepper")
	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "seed",
		KeyHash: auth.HashAPIKey("k1", pepper),
		Name:    "seed key",
		Scopes:  []string{"menu:write"},
	}))

	verifier := auth.NewKeyVerifier(keys, pepper)
	info, err := verifier.Verify(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"menu:write"}, info.Scopes)

	_, err = verifier.Verify(ctx, "k2")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
