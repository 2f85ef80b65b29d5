package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pdv-backend/internal/domain/auth"
)

// ListProducts serves GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, errors.Wrap(err, "list products"))
		return
	}

	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ArrStart()
		for _, p := range products {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(p.ID)
			e.FieldStart("barcode")
			e.Str(p.Barcode)
			e.FieldStart("description")
			e.Str(p.Description)
			e.FieldStart("unit")
			e.Str(p.Unit)
			e.FieldStart("price")
			e.RawStr(p.Price.StringFixed(2))
			e.FieldStart("stock")
			e.Int(p.Stock)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// ListCustomers serves GET /api/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	customers, err := h.customers.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, errors.Wrap(err, "list customers"))
		return
	}

	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ArrStart()
		for _, c := range customers {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(c.ID)
			e.FieldStart("name")
			e.Str(c.Name)
			e.FieldStart("document")
			e.Str(c.Document)
			e.FieldStart("phone")
			e.Str(c.Phone)
			e.FieldStart("email")
			e.Str(c.Email)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}
