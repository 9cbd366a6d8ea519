package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/bistro/internal/domain/menu"
)

// Sentinel errors for order validation and lookup.
var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNoItems         = errors.New("order has no items")
	ErrNotFound        = errors.New("order not found")
)

// MissingFieldError reports absent input. Line is the 1-based position of
// the offending line, or 0 when the order itself is incomplete.
type MissingFieldError struct {
	Line   int
	Fields []string
}

func (e *MissingFieldError) Error() string {
	fields := strings.Join(e.Fields, " or ")
	if e.Line == 0 {
		return "missing " + fields
	}
	return fmt.Sprintf("missing %s in line %d", fields, e.Line)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// MenuItemNotFoundError indicates an order line references an unknown menu item.
type MenuItemNotFoundError struct {
	MenuItemID int64
}

func (e *MenuItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item with ID %d not found", e.MenuItemID)
}

func (e *MenuItemNotFoundError) Unwrap() error { return menu.ErrNotFound }

// InvalidQuantityError indicates a line with a quantity below one.
type InvalidQuantityError struct {
	MenuItemID int64
	Quantity   int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for menu item %d, got %d", e.MenuItemID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// Line is one requested order line. A nil Quantity means the client did not
// send one, which is different from sending zero.
type Line struct {
	MenuItemID int64
	Quantity   *int
}

// NewLine returns a line with the quantity set.
func NewLine(menuItemID int64, quantity int) Line {
	return Line{MenuItemID: menuItemID, Quantity: &quantity}
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the provider used to trace order creation.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("github.com/xenking/bistro/internal/domain/order")
	}
}

// Service encapsulates order creation and retrieval.
type Service struct {
	catalog menu.Catalog
	orders  Repository
	tracer  trace.Tracer
}

// NewService creates an order Service with the required domain dependencies.
func NewService(catalog menu.Catalog, orders Repository, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		orders:  orders,
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the lines against the catalog, assembles the order in
// memory and persists it in one transaction. Nothing is written unless every
// line is valid.
func (s *Service) Create(ctx context.Context, userID string, lines []Line) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.Int("order.lines", len(lines))),
	)
	defer span.End()

	o, err := s.assemble(ctx, userID, lines)
	if err == nil {
		err = s.persist(ctx, o)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	return o, nil
}

func (s *Service) assemble(ctx context.Context, userID string, lines []Line) (*Order, error) {
	if strings.TrimSpace(userID) == "" || len(lines) == 0 {
		return nil, &MissingFieldError{Fields: []string{"userID", "lines"}}
	}

	o := New(userID)
	for i, line := range lines {
		if line.MenuItemID == 0 || line.Quantity == nil {
			return nil, &MissingFieldError{Line: i + 1, Fields: []string{"menuItemID", "quantity"}}
		}

		item, err := s.catalog.Lookup(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, menu.ErrNotFound) {
				return nil, &MenuItemNotFoundError{MenuItemID: line.MenuItemID}
			}
			return nil, errors.Wrapf(err, "lookup menu item %d", line.MenuItemID)
		}

		if _, err := o.AddItem(*item, *line.Quantity); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (s *Service) persist(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

// Get returns a single order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return o, nil
}

// List returns every order with its items. The result is never nil.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}
