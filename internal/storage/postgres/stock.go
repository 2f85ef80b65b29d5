package postgres

import (
	"context"

	"github.com/go-faster/errors"
)

const restockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

// Restock is a quantity delivered for one product.
type Restock struct {
	ProductID int64
	Quantity  int
}

// RestockResult reports how a batch of restocks was applied.
type RestockResult struct {
	Applied int
	Unknown []int64
}

// StockStore applies inventory receipts.
type StockStore struct {
	db DB
}

// NewStockStore returns a StockStore writing through db.
func NewStockStore(db DB) *StockStore {
	return &StockStore{db: db}
}

// Apply adds every entry to its product's stock in a single transaction.
// Entries naming unknown products are skipped and reported; any other error
// rolls the whole batch back.
func (s *StockStore) Apply(ctx context.Context, entries []Restock) (_ RestockResult, rerr error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return RestockResult{}, errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	var res RestockResult
	for _, e := range entries {
		tag, err := tx.Exec(ctx, restockSQL, e.ProductID, e.Quantity)
		if err != nil {
			return RestockResult{}, errors.Wrapf(err, "restock product %d", e.ProductID)
		}
		if tag.RowsAffected() == 0 {
			res.Unknown = append(res.Unknown, e.ProductID)
			continue
		}
		res.Applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return RestockResult{}, errors.Wrap(err, "commit")
	}
	return res, nil
}
