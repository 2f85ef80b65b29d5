package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
)

type catalogJSON struct {
	Products []struct {
		ID          int64           `json:"id"`
		Barcode     string          `json:"barcode"`
		Description string          `json:"description"`
		Unit        string          `json:"unit"`
		Price       decimal.Decimal `json:"price"`
		Stock       int             `json:"stock"`
	} `json:"products"`
	Customers []struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Document string `json:"document"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
	} `json:"customers"`
	Operators []operatorJSON `json:"operators"`
}

type operatorJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	PDVCode string `json:"pdv_code"`
	Active  *bool  `json:"active"`
}

type catalog struct {
	products  []product.Product
	customers []customer.Customer
	operators []operatorJSON
}

// seeder is the write side of postgres.Seeder.
type seeder interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCustomer(ctx context.Context, c customer.Customer) error
	UpsertOperator(ctx context.Context, op auth.Operator) error
	SyncSequences(ctx context.Context) error
}

func parseCatalog(data []byte) (*catalog, error) {
	var raw catalogJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode JSON")
	}

	cat := &catalog{operators: raw.Operators}
	for _, p := range raw.Products {
		if p.ID <= 0 || p.Description == "" {
			return nil, errors.Errorf("product %d: id and description are required", p.ID)
		}
		if p.Price.IsNegative() || p.Stock < 0 {
			return nil, errors.Errorf("product %d: price and stock must not be negative", p.ID)
		}
		unit := p.Unit
		if unit == "" {
			unit = "UN"
		}
		cat.products = append(cat.products, product.Product{
			ID:          p.ID,
			Barcode:     p.Barcode,
			Description: p.Description,
			Unit:        unit,
			Price:       p.Price.Round(2),
			Stock:       p.Stock,
		})
	}
	for _, c := range raw.Customers {
		if c.ID <= 0 || c.Name == "" {
			return nil, errors.Errorf("customer %d: id and name are required", c.ID)
		}
		cat.customers = append(cat.customers, customer.Customer{
			ID: c.ID, Name: c.Name, Document: c.Document, Phone: c.Phone, Email: c.Email,
		})
	}
	seen := make(map[string]int64, len(raw.Operators))
	for _, op := range raw.Operators {
		if op.ID <= 0 || op.PDVCode == "" {
			return nil, errors.Errorf("operator %d: id and pdv_code are required", op.ID)
		}
		if other, ok := seen[op.PDVCode]; ok {
			return nil, errors.Errorf("operators %d and %d share a PDV code", other, op.ID)
		}
		seen[op.PDVCode] = op.ID
	}
	return cat, nil
}

// seed writes the catalog and hashes operator codes with pepper so the
// plain codes never reach the database.
func seed(ctx context.Context, s seeder, cat *catalog, pepper []byte) error {
	slog.Info("upserting products", slog.Int("count", len(cat.products)))
	for _, p := range cat.products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}

	slog.Info("upserting customers", slog.Int("count", len(cat.customers)))
	for _, c := range cat.customers {
		if err := s.UpsertCustomer(ctx, c); err != nil {
			return err
		}
	}

	slog.Info("upserting operators", slog.Int("count", len(cat.operators)))
	for _, op := range cat.operators {
		active := op.Active == nil || *op.Active
		if err := s.UpsertOperator(ctx, auth.Operator{
			ID:       op.ID,
			Name:     op.Name,
			Email:    op.Email,
			CodeHash: auth.HashCode(pepper, op.PDVCode),
			Active:   active,
		}); err != nil {
			return err
		}
		slog.Info("upserted operator", slog.Int64("id", op.ID), slog.String("name", op.Name), slog.Bool("active", active))
	}

	return s.SyncSequences(ctx)
}
