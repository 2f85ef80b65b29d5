package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrAuthRequired is returned when a request carries no credential or the
	// credential does not resolve to an active operator.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotFound is returned by a Repository when no operator matches.
	ErrNotFound = errors.New("operator not found")
)

// Actor is the authenticated terminal operator performing a request.
type Actor struct {
	ID    int64
	Name  string
	Email string
}

// Operator is the stored record behind an Actor.
type Operator struct {
	ID       int64
	Name     string
	Email    string
	CodeHash string
	Active   bool
}

// Actor returns the request-facing identity of the operator.
func (o *Operator) Actor() Actor {
	return Actor{ID: o.ID, Name: o.Name, Email: o.Email}
}

// Repository looks up operators by the HMAC hash of their PDV code.
type Repository interface {
	FindByCodeHash(ctx context.Context, hash string) (*Operator, error)
}
