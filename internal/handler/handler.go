// Package handler implements the bistro HTTP API on a chi router with jx
// request and response codecs.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
)

// OrderService is the order workflow used by the handlers.
type OrderService interface {
	Create(ctx context.Context, userID string, lines []order.Line) (*order.Order, error)
	Get(ctx context.Context, id int64) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
}

// Authenticator checks login credentials.
type Authenticator interface {
	Verify(ctx context.Context, email, password string) (*auth.User, error)
}

// KeyVerifier checks API keys for the protected menu routes.
type KeyVerifier interface {
	Verify(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithMeterProvider sets the provider for the handler metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Handler) {
		h.meter = mp.Meter("github.com/xenking/bistro/internal/handler")
	}
}

// Handler serves the /api routes.
type Handler struct {
	orders OrderService
	menu   menu.Repository
	authn  Authenticator
	keys   KeyVerifier

	meter         metric.Meter
	ordersCreated metric.Int64Counter
}

// New builds a Handler and registers its metrics.
func New(orders OrderService, menus menu.Repository, authn Authenticator, keys KeyVerifier, opts ...Option) (*Handler, error) {
	h := &Handler{
		orders: orders,
		menu:   menus,
		authn:  authn,
		keys:   keys,
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	for _, opt := range opts {
		opt(h)
	}

	var err error
	h.ordersCreated, err = h.meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted successfully"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	return h, nil
}

// Register mounts the welcome route and the API under /api.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.Welcome)
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Get("/{id}", h.GetOrder)
		})

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", h.ListMenu)
			r.Get("/{id}", h.GetMenuItem)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAPIKey)
				r.Post("/", h.CreateMenuItem)
				r.Put("/{id}", h.UpdateMenuItem)
				r.Delete("/{id}", h.DeleteMenuItem)
			})
		})
	})
}

// Welcome answers GET /.
func (h *Handler) Welcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to the bistro API!"))
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
