package sale

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidInput matches every request validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransactionFailed matches every store failure that aborted a sale.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConcurrentUpdate matches store failures caused by a competing
	// transaction, such as a deadlock. It is always wrapped in a
	// TransactionError; the request may be retried unchanged.
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrEmptyItems is returned when a request has no line items.
	ErrEmptyItems error = &InvalidInputError{Reason: "items required"}
)

// InvalidInputError describes a malformed request. It matches
// ErrInvalidInput.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Reason
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// CustomerNotFoundError indicates the sale names a customer the store does
// not know. Stores return it from InsertSale.
type CustomerNotFoundError struct {
	CustomerID int64
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("customer %d not found", e.CustomerID)
}

// InsufficientStockError indicates a line asks for more units than the
// product has in stock.
type InsufficientStockError struct {
	ProductID   int64
	Description string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): requested %d, available %d",
		e.Description, e.ProductID, e.Requested, e.Available)
}

// TransactionError wraps the store error that aborted a sale. It matches
// ErrTransactionFailed and unwraps to the store error.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("save sale: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

func txFailed(op string, err error) error {
	return &TransactionError{Op: op, Err: err}
}

// failureReason classifies err for metrics.
func failureReason(err error) string {
	var (
		notFound   *ProductNotFoundError
		noCustomer *CustomerNotFoundError
		noStock    *InsufficientStockError
	)
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.As(err, &notFound):
		return "product_not_found"
	case errors.As(err, &noCustomer):
		return "customer_not_found"
	case errors.As(err, &noStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrTransactionFailed):
		return "transaction_failed"
	default:
		return "unknown"
	}
}
