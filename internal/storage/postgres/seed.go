package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
)

const (
	upsertProductSQL = `INSERT INTO products (id, barcode, description, unit, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			barcode = EXCLUDED.barcode,
			description = EXCLUDED.description,
			unit = EXCLUDED.unit,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock`

	upsertCustomerSQL = `INSERT INTO customers (id, name, document, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email`

	upsertOperatorSQL = `INSERT INTO operators (id, name, email, code_hash, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			code_hash = EXCLUDED.code_hash,
			active = EXCLUDED.active`

	syncSequenceSQL = `SELECT setval(pg_get_serial_sequence($1, 'id'), COALESCE(MAX(id), 0) + 1, false) FROM `
)

// Seeder upserts reference data with fixed identifiers.
type Seeder struct {
	db DB
}

// NewSeeder returns a Seeder writing through db.
func NewSeeder(db DB) *Seeder {
	return &Seeder{db: db}
}

// UpsertProduct inserts p or overwrites the product with the same ID.
func (s *Seeder) UpsertProduct(ctx context.Context, p product.Product) error {
	if _, err := s.db.Exec(ctx, upsertProductSQL,
		p.ID, p.Barcode, p.Description, p.Unit, p.Price, p.Stock,
	); err != nil {
		return errors.Wrapf(err, "upsert product %d", p.ID)
	}
	return nil
}

// UpsertCustomer inserts c or overwrites the customer with the same ID.
func (s *Seeder) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	if _, err := s.db.Exec(ctx, upsertCustomerSQL,
		c.ID, c.Name, c.Document, c.Phone, c.Email,
	); err != nil {
		return errors.Wrapf(err, "upsert customer %d", c.ID)
	}
	return nil
}

// UpsertOperator inserts op or overwrites the operator with the same ID.
func (s *Seeder) UpsertOperator(ctx context.Context, op auth.Operator) error {
	if _, err := s.db.Exec(ctx, upsertOperatorSQL,
		op.ID, op.Name, op.Email, op.CodeHash, op.Active,
	); err != nil {
		return errors.Wrapf(err, "upsert operator %d", op.ID)
	}
	return nil
}

// SyncSequences moves identity sequences past the highest seeded ID so rows
// inserted later do not collide with seeded ones.
func (s *Seeder) SyncSequences(ctx context.Context) error {
	for _, table := range []string{"products", "customers", "operators"} {
		if _, err := s.db.Exec(ctx, syncSequenceSQL+table, table); err != nil {
			return errors.Wrapf(err, "sync %s sequence", table)
		}
	}
	return nil
}
