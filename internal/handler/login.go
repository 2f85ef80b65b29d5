package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/pdv-backend/internal/domain/sale"
)

// Login serves POST /api/login. The terminal posts its PDV code and gets the
// operator profile back; later requests carry the same code in the
// Authorization header.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	code, err := decodeLogin(data)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	actor, err := h.auth.Authenticate(r.Context(), code)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(actor.ID)
		e.FieldStart("name")
		e.Str(actor.Name)
		e.FieldStart("email")
		e.Str(actor.Email)
		e.ObjEnd()
	})
}

func decodeLogin(data []byte) (string, error) {
	var code string
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "pdv_code" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.Null:
			return d.Null()
		case jx.String:
		default:
			return &fieldError{field: "pdv_code", reason: "must be a string"}
		}
		var err error
		code, err = d.Str()
		return err
	})
	if err != nil {
		return "", invalidBody(err)
	}
	if strings.TrimSpace(code) == "" {
		return "", &sale.InvalidInputError{Reason: "pdv_code is required"}
	}
	return code, nil
}
