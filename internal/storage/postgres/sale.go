package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pdv-backend/internal/domain/product"
	"github.com/xenking/pdv-backend/internal/domain/sale"
)

const (
	insertSaleSQL = `INSERT INTO sales (sold_at, total, discount, discount_value, discount_type,
		invoiced, notes, customer_notes, customer_id, operator_id, ledger_entry_id, status, warranty)
		VALUES ($1, $2, 0, 0, NULL, FALSE, NULL, NULL, $3, $4, NULL, $5, NULL)
		RETURNING id`

	lockProductSQL = `SELECT id, barcode, description, unit, price, stock
		FROM products WHERE id = $1 FOR UPDATE`

	insertSaleItemSQL = `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`

	setSaleTotalSQL = `UPDATE sales SET total = $2 WHERE id = $1`

	saleCustomerFK = "sales_customer_fk"
)

var (
	_ sale.Store = (*SaleStore)(nil)
	_ sale.Tx    = (*saleTx)(nil)
)

// SaleStore implements sale.Store on a pgx connection pool.
type SaleStore struct {
	db DB
}

// NewSaleStore returns a SaleStore that opens transactions on db.
func NewSaleStore(db DB) *SaleStore {
	return &SaleStore{db: db}
}

// Begin starts a read-committed transaction. Products read through the
// returned Tx are locked until it ends, so concurrent sales of the same
// product serialize on the stock check.
func (s *SaleStore) Begin(ctx context.Context) (sale.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	return &saleTx{tx: tx}, nil
}

type saleTx struct {
	tx pgx.Tx
}

func (t *saleTx) InsertSale(ctx context.Context, s *sale.Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertSaleSQL,
		s.CreatedAt, s.Total, s.CustomerID, s.OperatorID, s.Status,
	).Scan(&id)
	if err != nil {
		if code, constraint := pgErrorCode(err); code == codeForeignKeyViolation && constraint == saleCustomerFK {
			return 0, &sale.CustomerNotFoundError{CustomerID: s.CustomerID}
		}
		return 0, errors.Wrap(err, "insert sale")
	}
	return id, nil
}

func (t *saleTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, lockProductSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, markConflict(errors.Wrapf(err, "lock product %d", id))
	}
	return &p, nil
}

func (t *saleTx) InsertItem(ctx context.Context, item *sale.Item) error {
	_, err := t.tx.Exec(ctx, insertSaleItemSQL,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	)
	if err != nil {
		return markConflict(errors.Wrapf(err, "insert item for product %d", item.ProductID))
	}
	return nil
}

func (t *saleTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, quantity)
	if err != nil {
		if code, _ := pgErrorCode(err); code == codeCheckViolation {
			return errors.Wrapf(err, "stock of product %d would go negative", productID)
		}
		return markConflict(errors.Wrapf(err, "decrement stock of product %d", productID))
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("decrement stock of product %d: %d rows affected", productID, tag.RowsAffected())
	}
	return nil
}

func (t *saleTx) SetTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, setSaleTotalSQL, saleID, total)
	if err != nil {
		return markConflict(errors.Wrapf(err, "set total of sale %d", saleID))
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("set total of sale %d: %d rows affected", saleID, tag.RowsAffected())
	}
	return nil
}

func (t *saleTx) Commit(ctx context.Context) error {
	return markConflict(t.tx.Commit(ctx))
}

func (t *saleTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// conflictError marks a store failure caused by a competing transaction.
// Postgres aborts one of two sales that lock the same products in opposite
// order; the aborted sale can be resubmitted unchanged.
type conflictError struct {
	err error
}

func (e *conflictError) Error() string { return e.err.Error() }

func (e *conflictError) Unwrap() error { return e.err }

func (e *conflictError) Is(target error) bool { return target == sale.ErrConcurrentUpdate }

func markConflict(err error) error {
	switch code, _ := pgErrorCode(err); code {
	case codeDeadlockDetected, codeSerializationFailure:
		return &conflictError{err: err}
	}
	return err
}
