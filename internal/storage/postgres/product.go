package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/pdv-backend/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, barcode, description, unit, price, stock
		FROM products ORDER BY id`

	listProductIDsSQL = `SELECT id FROM products`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// IDs returns the identifiers of every product in the catalog.
func (r *ProductRepository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, listProductIDsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list product ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrap(err, "scan product ids")
	}
	return ids, nil
}

func scanProduct(row pgx.Row) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Description, &p.Unit, &p.Price, &p.Stock)
	return p, err
}
