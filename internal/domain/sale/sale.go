// Package sale records checkout events: the sale header, its line items and
// the stock they consume, written as one store transaction.
package sale

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pdv-backend/internal/domain/product"
)

// StatusOpen is the status every sale is created with. Later workflows
// (invoicing, cancellation) move it on; creation never does.
const StatusOpen = "open"

// Sale is the header record of one checkout.
type Sale struct {
	ID         int64
	CreatedAt  time.Time
	Total      decimal.Decimal
	Status     string
	CustomerID int64
	OperatorID int64
}

// Item is one product line of a sale. UnitPrice is the product price at the
// time of sale.
type Item struct {
	SaleID    int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// LineRequest is one requested product line.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// Request is the input of CreateSale. A zero CustomerID selects the
// configured default customer.
type Request struct {
	CustomerID int64
	Items      []LineRequest
}

// Receipt is the outcome of a committed sale.
type Receipt struct {
	SaleID     int64
	Total      decimal.Decimal
	CustomerID int64
}

// Store opens transactions against the sales database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single store transaction. It is owned by one CreateSale call and
// must not be shared.
//
// GetProduct returns product.ErrNotFound for unknown IDs and must read the
// row in a way that keeps it stable until the transaction ends.
type Tx interface {
	InsertSale(ctx context.Context, s *Sale) (int64, error)
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	InsertItem(ctx context.Context, item *Item) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	SetTotal(ctx context.Context, saleID int64, total decimal.Decimal) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
