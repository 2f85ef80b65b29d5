package handler

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pdv-backend/internal/domain/sale"
)

// fieldError names the request field that failed to decode.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.reason
}

// decodeObject decodes data as exactly one JSON object, calling field for
// each key. Anything but whitespace after the object is rejected.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if err := d.Obj(field); err != nil {
		return err
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// invalidBody turns a decode failure into InvalidInput, keeping only the
// field-level reason when there is one.
func invalidBody(err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		return &sale.InvalidInputError{Reason: fe.Error()}
	}
	return &sale.InvalidInputError{Reason: "invalid JSON body"}
}

// decodeInt64 reads a JSON integer into field name.
func decodeInt64(d *jx.Decoder, name string) (int64, error) {
	if d.Next() != jx.Number {
		return 0, &fieldError{field: name, reason: "must be an integer"}
	}
	v, err := d.Int64()
	if err != nil {
		return 0, &fieldError{field: name, reason: "must be an integer"}
	}
	return v, nil
}
