package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/menu"
)

const (
	msgMenuRequired = "Invalid data. 'name' and 'price' are required."
	msgMenuInvalid  = "Invalid data. 'name' must not be empty and 'price' must not be negative."
	msgMenuNotFound = "Menu item not found"
)

// ListMenu handles GET /api/menu.
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.List(r.Context())
	if err != nil {
		h.internalError(w, r, "List menu failed", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range items {
				encodeMenuItem(e, it)
			}
		})
	})
}

// GetMenuItem handles GET /api/menu/{id}.
func (h *Handler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgMenuNotFound)
		return
	}
	item, err := h.menu.Lookup(r.Context(), id)
	if err != nil {
		h.menuError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMenuItem(e, *item)
	})
}

// CreateMenuItem handles POST /api/menu.
func (h *Handler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgMenuRequired)
		return
	}
	req, err := decodeMenuItem(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Patch.Name == nil || req.Patch.Price == nil {
		writeError(w, http.StatusBadRequest, msgMenuRequired)
		return
	}

	item := req.Patch.Apply(menu.Item{})
	if err := item.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, msgMenuInvalid)
		return
	}
	if err := h.menu.Create(r.Context(), &item); err != nil {
		h.menuError(w, r, err)
		return
	}

	writeMessage(w, http.StatusCreated, "Menu item created successfully.", "menu_item", func(e *jx.Encoder) {
		encodeMenuItem(e, item)
	})
}

// UpdateMenuItem handles PUT /api/menu/{id}. Absent fields are left unchanged.
func (h *Handler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgMenuNotFound)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req, err := decodeMenuItem(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	item, err := h.menu.Update(r.Context(), id, req.Patch)
	if err != nil {
		h.menuError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Menu item updated successfully", "menu_item", func(e *jx.Encoder) {
		encodeMenuItem(e, *item)
	})
}

// DeleteMenuItem handles DELETE /api/menu/{id}.
func (h *Handler) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgMenuNotFound)
		return
	}
	if err := h.menu.Delete(r.Context(), id); err != nil {
		h.menuError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Menu item deleted successfully", "", nil)
}

func (h *Handler) menuError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, menu.ErrNotFound):
		writeError(w, http.StatusNotFound, msgMenuNotFound)
	case errors.Is(err, menu.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, msgMenuInvalid)
	default:
		h.internalError(w, r, "Menu operation failed", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
