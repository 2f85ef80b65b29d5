package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/sale"
)

// CreateSale serves POST /api/sales.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	req, err := decodeSaleRequest(data)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	receipt, err := h.sales.CreateSale(r.Context(), actor, req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("sale_id")
		e.Int64(receipt.SaleID)
		e.FieldStart("total")
		e.RawStr(receipt.Total.StringFixed(2))
		e.FieldStart("customer_id")
		e.Int64(receipt.CustomerID)
	})
}

// decodeSaleRequest parses
//
//	{"customer_id": 12 | null, "items": [{"product_id": 7, "quantity": 2}]}
//
// An absent or null customer_id leaves CustomerID zero, which selects the
// default customer. Unknown fields are ignored.
func decodeSaleRequest(data []byte) (sale.Request, error) {
	var req sale.Request
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "customer_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			id, err := decodeInt64(d, "customer_id")
			req.CustomerID = id
			return err
		case "items":
			switch d.Next() {
			case jx.Null:
				return d.Null()
			case jx.Array:
			default:
				return &fieldError{field: "items", reason: "must be an array"}
			}
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d, fmt.Sprintf("items[%d]", len(req.Items)))
				if err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return sale.Request{}, invalidBody(err)
	}
	return req, nil
}

func decodeLine(d *jx.Decoder, path string) (sale.LineRequest, error) {
	var line sale.LineRequest
	if d.Next() != jx.Object {
		return line, &fieldError{field: path, reason: "must be an object"}
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			line.ProductID, err = decodeInt64(d, path+".product_id")
		case "quantity":
			var q int64
			q, err = decodeInt64(d, path+".quantity")
			if err == nil && q != int64(int32(q)) {
				err = &fieldError{field: path + ".quantity", reason: "out of range"}
			}
			line.Quantity = int(q)
		default:
			err = d.Skip()
		}
		return err
	})
	return line, err
}
