package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req, err := decodeCreateOrder(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	o, err := h.orders.Create(ctx, req.UserID, req.Lines)
	if err != nil {
		status, msg := orderErrorStatus(err)
		if status == http.StatusInternalServerError {
			zctx.From(ctx).Error("Create order failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	h.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.Int("order.lines", len(o.Items))))
	writeMessage(w, http.StatusCreated, "Order created successfully", "order", func(e *jx.Encoder) {
		encodeOrder(e, o.View(true))
	})
}

// orderErrorStatus maps an order creation error to a status and client message.
func orderErrorStatus(err error) (int, string) {
	var (
		missing  *order.MissingFieldError
		notFound *order.MenuItemNotFoundError
		quantity *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &missing):
		msg := "Missing " + strings.Join(missing.Fields, " or ")
		if missing.Line > 0 {
			msg += fmt.Sprintf(" in line %d", missing.Line)
		}
		return http.StatusBadRequest, msg
	case errors.As(err, &notFound):
		return http.StatusNotFound, fmt.Sprintf("Menu item with ID %d not found", notFound.MenuItemID)
	case errors.As(err, &quantity):
		return http.StatusBadRequest, fmt.Sprintf("Quantity must be at least 1 for menu item %d", quantity.MenuItemID)
	case errors.Is(err, order.ErrNoItems):
		return http.StatusBadRequest, "Order must contain at least one line"
	default:
		return http.StatusInternalServerError, "Failed to create order"
	}
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, orders[i].View(true))
			}
		})
	})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case err != nil:
		zctx.From(r.Context()).Error("Get order failed", zap.Int64("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch order")
	default:
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeOrder(e, o.View(true))
		})
	}
}
