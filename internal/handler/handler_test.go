package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
	"github.com/xenking/bistro/internal/storage"
)

const (
	testPepper = "test-pepper"
	testAPIKey = "bistro-test-key"
)

// --- Fakes ---

type failingOrders struct{ err error }

func (f failingOrders) Create(context.Context, string, []order.Line) (*order.Order, error) {
	return nil, f.err
}

func (f failingOrders) Get(context.Context, int64) (*order.Order, error) { return nil, f.err }

func (f failingOrders) List(context.Context) ([]order.Order, error) { return nil, f.err }

type failingMenu struct {
	menu.Repository
	err error
}

func (f failingMenu) List(context.Context) ([]menu.Item, error) { return nil, f.err }

// --- Helpers ---

type fixture struct {
	store  *storage.Store
	router chi.Router
	reader *sdkmetric.ManualReader
	burger menu.Item
	fries  menu.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	f := &fixture{
		store:  store,
		burger: menu.Item{Name: "Burger", Price: decimal.RequireFromString("9.50"), Description: "Beef", Image: "burger.png"},
		fries:  menu.Item{Name: "Fries", Price: decimal.RequireFromString("3.25"), Image: "fries.png"},
	}
	require.NoError(t, store.Menu.Create(ctx, &f.burger))
	require.NoError(t, store.Menu.Create(ctx, &f.fries))

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, store.Users.Create(ctx, &auth.User{
		Username: "admin", Email: "admin@example.com", PasswordHash: hash, Role: "admin",
	}))
	require.NoError(t, store.APIKeys.Upsert(ctx, auth.APIKeyInfo{
		ID: "test", KeyHash: auth.HashAPIKey(testAPIKey, []byte(testPepper)), Name: "test", Scopes: []string{"menu:write"},
	}))

	f.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))

	f.router = newRouter(t, order.NewService(store.Menu, store.Orders), store.Menu, store, WithMeterProvider(mp))
	return f
}

func newRouter(t *testing.T, orders OrderService, menus menu.Repository, store *storage.Store, opts ...Option) chi.Router {
	t.Helper()
	h, err := New(orders, menus,
		auth.NewAuthenticator(store.Users),
		auth.NewKeyVerifier(store.APIKeys, []byte(testPepper)),
		opts...,
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, hdr ...string) (int, *jx.Decoder, string) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code, jx.DecodeBytes(rec.Body.Bytes()), rec.Body.String()
}

func errorMessage(t *testing.T, d *jx.Decoder) string {
	t.Helper()
	var msg string
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		s, err := d.Str()
		msg = s
		return err
	}))
	return msg
}

func ordersCreated(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orders.created" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// --- Tests ---

func TestWelcome(t *testing.T) {
	f := newFixture(t)
	code, _, body := do(t, f.router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Welcome to the bistro API!", body)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	body := `{"userID":"u1","lines":[{"menuItemID":` + itoa(f.fries.ID) + `,"quantity":2},{"menuItemID":` + itoa(f.burger.ID) + `,"quantity":1}]}`
	code, _, raw := do(t, f.router, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, code, raw)

	assert.Contains(t, raw, `"message":"Order created successfully"`)
	assert.Contains(t, raw, `"userID":"u1"`)
	assert.Contains(t, raw, `"status":"Pending"`)
	assert.Contains(t, raw, `"menuItemPrice":3.25`)
	assert.Less(t, strings.Index(raw, `"Fries"`), strings.Index(raw, `"Burger"`))
	assert.Equal(t, int64(1), ordersCreated(t, f.reader))

	code, _, raw = do(t, f.router, http.MethodGet, "/api/orders/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, `"menuItemName":"Fries"`)
	assert.Contains(t, raw, `"quantity":2`)
}

func TestCreateOrder_LegacyFields(t *testing.T) {
	f := newFixture(t)

	body := `{"user_id":7,"order_items":[{"menuitem_id":` + itoa(f.burger.ID) + `,"quantity":3}]}`
	code, _, raw := do(t, f.router, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, code, raw)
	assert.Contains(t, raw, `"userID":"7"`)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   func(f *fixture) string
		status int
		msg    string
	}{
		{
			name:   "malformed",
			body:   func(*fixture) string { return `{"userID":` },
			status: http.StatusBadRequest,
			msg:    "Invalid JSON body",
		},
		{
			name:   "not an object",
			body:   func(*fixture) string { return `[1,2]` },
			status: http.StatusBadRequest,
			msg:    "Invalid JSON body",
		},
		{
			name:   "missing user",
			body:   func(f *fixture) string { return `{"lines":[{"menuItemID":` + itoa(f.burger.ID) + `,"quantity":1}]}` },
			status: http.StatusBadRequest,
			msg:    "Missing userID or lines",
		},
		{
			name:   "empty lines",
			body:   func(*fixture) string { return `{"userID":"u1","lines":[]}` },
			status: http.StatusBadRequest,
			msg:    "Missing userID or lines",
		},
		{
			name:   "line without quantity",
			body:   func(f *fixture) string { return `{"userID":"u1","lines":[{"menuItemID":` + itoa(f.burger.ID) + `}]}` },
			status: http.StatusBadRequest,
			msg:    "Missing menuItemID or quantity in line 1",
		},
		{
			name:   "zero quantity",
			body:   func(f *fixture) string { return `{"userID":"u1","lines":[{"menuItemID":` + itoa(f.burger.ID) + `,"quantity":0}]}` },
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown menu item",
			body:   func(*fixture) string { return `{"userID":"u1","lines":[{"menuItemID":999,"quantity":1}]}` },
			status: http.StatusNotFound,
			msg:    "Menu item with ID 999 not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			code, d, raw := do(t, f.router, http.MethodPost, "/api/orders", tt.body(f))
			require.Equal(t, tt.status, code, raw)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, errorMessage(t, d))
			}
			assert.Zero(t, ordersCreated(t, f.reader))

			orders, err := f.store.Orders.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestOrders_ServiceFailure(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, failingOrders{err: errors.New("db down")}, f.store.Menu, f.store)

	code, d, _ := do(t, r, http.MethodPost, "/api/orders", `{"userID":"u1","lines":[{"menuItemID":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to create order", errorMessage(t, d))

	code, d, _ = do(t, r, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to fetch orders", errorMessage(t, d))

	code, d, _ = do(t, r, http.MethodGet, "/api/orders/1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to fetch order", errorMessage(t, d))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)

	code, _, raw := do(t, f.router, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, raw)

	for _, user := range []string{"a", "b"} {
		body := `{"userID":"` + user + `","lines":[{"menuItemID":` + itoa(f.burger.ID) + `,"quantity":1}]}`
		code, _, _ := do(t, f.router, http.MethodPost, "/api/orders", body)
		require.Equal(t, http.StatusCreated, code)
	}

	code, d, _ := do(t, f.router, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, code)
	var n int
	require.NoError(t, d.Arr(func(d *jx.Decoder) error {
		n++
		return d.Skip()
	}))
	assert.Equal(t, 2, n)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/orders/42", "/api/orders/abc"} {
		code, d, _ := do(t, f.router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.Equal(t, "Order not found", errorMessage(t, d))
	}
}

func TestMenu_Read(t *testing.T) {
	f := newFixture(t)

	code, _, raw := do(t, f.router, http.MethodGet, "/api/menu", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, `"name":"Burger"`)
	assert.Contains(t, raw, `"price":9.50`)

	code, _, raw = do(t, f.router, http.MethodGet, "/api/menu/"+itoa(f.fries.ID), "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, `"name":"Fries"`)

	code, d, _ := do(t, f.router, http.MethodGet, "/api/menu/999", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Menu item not found", errorMessage(t, d))
}

func TestMenu_ListFailure(t *testing.T) {
	f := newFixture(t)
	r := newRouter(t, order.NewService(f.store.Menu, f.store.Orders), failingMenu{err: errors.New("db down")}, f.store)

	code, d, _ := do(t, r, http.MethodGet, "/api/menu", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", errorMessage(t, d))
}

func TestMenu_WriteRequiresAPIKey(t *testing.T) {
	f := newFixture(t)

	code, d, _ := do(t, f.router, http.MethodPost, "/api/menu", `{"name":"Soda","price":1.5}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", errorMessage(t, d))

	code, _, _ = do(t, f.router, http.MethodDelete, "/api/menu/1", "", APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	items, err := f.store.Menu.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMenu_Write(t *testing.T) {
	f := newFixture(t)

	code, _, raw := do(t, f.router, http.MethodPost, "/api/menu", `{"name":"Soda","price":"1.5","image":"soda.png"}`, APIKeyHeader, testAPIKey)
	require.Equal(t, http.StatusCreated, code, raw)
	assert.Contains(t, raw, `"message":"Menu item created successfully."`)
	assert.Contains(t, raw, `"price":1.50`)

	soda, err := f.store.Menu.FindByName(context.Background(), "Soda")
	require.NoError(t, err)
	id := itoa(soda.ID)

	code, _, raw = do(t, f.router, http.MethodPut, "/api/menu/"+id, `{"price":2}`, "Authorization", "Bearer "+testAPIKey)
	require.Equal(t, http.StatusOK, code, raw)
	assert.Contains(t, raw, `"name":"Soda"`)
	assert.Contains(t, raw, `"price":2.00`)

	code, _, raw = do(t, f.router, http.MethodDelete, "/api/menu/"+id, "", APIKeyHeader, testAPIKey)
	require.Equal(t, http.StatusOK, code, raw)
	assert.JSONEq(t, `{"message":"Menu item deleted successfully"}`, raw)

	code, _, _ = do(t, f.router, http.MethodDelete, "/api/menu/"+id, "", APIKeyHeader, testAPIKey)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMenu_CreateValidation(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"name":"Soda"}`, `{"price":1}`, `{}`} {
		code, d, _ := do(t, f.router, http.MethodPost, "/api/menu", body, APIKeyHeader, testAPIKey)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.Equal(t, "Invalid data. 'name' and 'price' are required.", errorMessage(t, d))
	}

	code, _, _ := do(t, f.router, http.MethodPost, "/api/menu", `{"name":"Soda","price":-1}`, APIKeyHeader, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	code, _, raw := do(t, f.router, http.MethodPost, "/api/login", `{"email":"admin@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, code, raw)
	assert.Contains(t, raw, `"username":"admin"`)
	assert.NotContains(t, raw, "secret")

	code, d, _ := do(t, f.router, http.MethodPost, "/api/login", `{"email":"admin@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid credentials", errorMessage(t, d))

	code, d, _ = do(t, f.router, http.MethodPost, "/api/login", `{"email":"admin@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email and password are required", errorMessage(t, d))
}

func TestLogin_MalformedBody(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"email":"admin@example.com","password":"secret",`,
		`{"email":"admin@example.com","password":"secret","extra":}`,
		`["admin@example.com","secret"]`,
	} {
		code, d, raw := do(t, f.router, http.MethodPost, "/api/login", body)
		assert.Equal(t, http.StatusBadRequest, code, raw)
		assert.Equal(t, "Invalid JSON body", errorMessage(t, d), body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
