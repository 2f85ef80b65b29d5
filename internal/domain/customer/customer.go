// Package customer holds the customer catalog served to terminals.
package customer

import "context"

// Customer is a buyer a sale can be attributed to.
type Customer struct {
	ID       int64
	Name     string
	Document string
	Phone    string
	Email    string
}

// Repository lists customers.
type Repository interface {
	List(ctx context.Context) ([]Customer, error)
}
