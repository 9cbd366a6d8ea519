package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/domain/order"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errNotObject = errors.New("request body must be a JSON object")

// readBody returns a decoder over the request body.
func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, errNotObject
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.FieldStart("error")
			e.Str(msg)
		})
	})
}

func writeMessage(w http.ResponseWriter, status int, msg, field string, value func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.FieldStart("message")
			e.Str(msg)
			if value != nil {
				e.FieldStart(field)
				value(e)
			}
		})
	})
}

// Requests.

type createOrderRequest struct {
	UserID string
	Lines  []order.Line
}

// decodeCreateOrder accepts both the current field names and the legacy
// user_id / order_items / menuitem_id spelling.
func decodeCreateOrder(d *jx.Decoder) (createOrderRequest, error) {
	var req createOrderRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userID", "userId", "user_id":
			s, err := decodeIdentifier(d)
			req.UserID = s
			return err
		case "lines", "order_items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode order request")
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.Line, error) {
	var line order.Line
	if d.Next() != jx.Object {
		return line, errors.New("line must be an object")
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "menuItemID", "menuItemId", "menuitem_id", "menu_item_id":
			v, err := decodeOptionalInt(d)
			if v != nil {
				line.MenuItemID = int64(*v)
			}
			return err
		case "quantity":
			v, err := decodeOptionalInt(d)
			line.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return line, err
}

// decodeIdentifier reads a string or a number as a string; null yields "".
func decodeIdentifier(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.New("identifier must be a string or a number")
	}
}

func decodeOptionalInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodePrice reads a price given either as a JSON number or a numeric string.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Decimal{}, errors.New("price must be a number")
	}
}

type menuItemRequest struct {
	Patch menu.Patch
}

func decodeMenuItem(d *jx.Decoder) (menuItemRequest, error) {
	var req menuItemRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			s, err := d.Str()
			req.Patch.Name = &s
			return err
		case "price":
			p, err := decodePrice(d)
			req.Patch.Price = &p
			return err
		case "description":
			s, err := optionalStr(d)
			req.Patch.Description = s
			return err
		case "image":
			s, err := optionalStr(d)
			req.Patch.Image = s
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, errors.Wrap(err, "decode menu item request")
	}
	return req, nil
}

func optionalStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	return &s, err
}

type loginRequest struct {
	Email    string
	Password string
}

func decodeLogin(d *jx.Decoder) (loginRequest, error) {
	var req loginRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var (
			s   *string
			err error
		)
		switch key {
		case "email":
			s, err = optionalStr(d)
			if s != nil {
				req.Email = *s
			}
		case "password":
			s, err = optionalStr(d)
			if s != nil {
				req.Password = *s
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, errors.Wrap(err, "decode login request")
	}
	return req, nil
}

// Responses.

func encodePrice(e *jx.Encoder, p decimal.Decimal) {
	e.Num(jx.Num(p.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, v order.View) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Int64(v.ID)
		e.FieldStart("userID")
		e.Str(v.UserID)
		e.FieldStart("status")
		e.Str(string(v.Status))
		e.FieldStart("createdAt")
		e.Str(v.CreatedAt.UTC().Format(time.RFC3339))
		if v.Items == nil {
			return
		}
		e.FieldStart("items")
		e.Arr(func(e *jx.Encoder) {
			for _, it := range v.Items {
				encodeOrderItem(e, it)
			}
		})
	})
}

func encodeOrderItem(e *jx.Encoder, it order.ItemView) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("menuItemID")
		e.Int64(it.MenuItemID)
		e.FieldStart("menuItemName")
		e.Str(it.MenuItemName)
		e.FieldStart("menuItemPrice")
		encodePrice(e, it.MenuItemPrice)
		e.FieldStart("menuItemImage")
		e.Str(it.MenuItemImage)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
	})
}

func encodeMenuItem(e *jx.Encoder, it menu.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Int64(it.ID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		encodePrice(e, it.Price)
		e.FieldStart("description")
		e.Str(it.Description)
		e.FieldStart("image")
		e.Str(it.Image)
	})
}

func encodeUser(e *jx.Encoder, u *auth.User) {
	e.Obj(func(e *jx.Encoder) {
		e.FieldStart("id")
		e.Int64(u.ID)
		e.FieldStart("username")
		e.Str(u.Username)
		e.FieldStart("email")
		e.Str(u.Email)
		e.FieldStart("role")
		e.Str(u.Role)
	})
}
