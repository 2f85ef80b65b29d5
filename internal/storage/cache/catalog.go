// Package cache keeps read-through copies of the product and customer
// catalogs in Redis.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
	"github.com/xenking/pdv-backend/internal/domain/sale"
)

const (
	productsKey  = "pdv:catalog:products"
	customersKey = "pdv:catalog:customers"

	defaultTTL = time.Minute
)

// NewClient builds a Redis client from a redis:// URL or a plain host:port
// address.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	if opts, err := redis.ParseURL(addr); err == nil {
		if password != "" {
			opts.Password = password
		}
		return redis.NewClient(opts), nil
	}
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), nil
}

// Catalog serves product and customer lists from Redis, falling back to the
// wrapped repositories on a miss or when Redis is unavailable.
type Catalog struct {
	rdb       redis.Cmdable
	products  product.Repository
	customers customer.Repository
	ttl       time.Duration
}

// NewCatalog wraps the repositories with a cache stored in rdb. A
// non-positive ttl means one minute.
func NewCatalog(rdb redis.Cmdable, products product.Repository, customers customer.Repository, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{rdb: rdb, products: products, customers: customers, ttl: ttl}
}

// Products returns a product.Repository view of the cache.
func (c *Catalog) Products() product.Repository { return productView{c} }

// Customers returns a customer.Repository view of the cache.
func (c *Catalog) Customers() customer.Repository { return customerView{c} }

// InvalidateProducts drops the cached product list. Stock changes with every
// sale, so it is registered as a sale commit hook.
func (c *Catalog) InvalidateProducts(ctx context.Context) error {
	return InvalidateProducts(ctx, c.rdb)
}

// InvalidateProducts drops the product list cached in rdb. Tools that change
// stock outside the API process call it after committing.
func InvalidateProducts(ctx context.Context, rdb redis.Cmdable) error {
	if err := rdb.Del(ctx, productsKey).Err(); err != nil {
		return errors.Wrap(err, "del products")
	}
	return nil
}

// CommitHook adapts InvalidateProducts to sale.CommitHook.
func (c *Catalog) CommitHook() sale.CommitHook {
	return func(ctx context.Context, r *sale.Receipt) {
		if err := c.InvalidateProducts(ctx); err != nil {
			zctx.From(ctx).Warn("Product cache invalidation failed",
				zap.Int64("sale_id", r.SaleID),
				zap.Error(err),
			)
		}
	}
}

// Ping reports whether Redis is reachable. Used as a readiness check.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

type productView struct{ c *Catalog }

func (v productView) List(ctx context.Context) ([]product.Product, error) {
	return readThrough(ctx, v.c, productsKey, v.c.products.List, encodeProducts, decodeProducts)
}

type customerView struct{ c *Catalog }

func (v customerView) List(ctx context.Context) ([]customer.Customer, error) {
	return readThrough(ctx, v.c, customersKey, v.c.customers.List, encodeCustomers, decodeCustomers)
}

func readThrough[T any](
	ctx context.Context,
	c *Catalog,
	key string,
	load func(context.Context) ([]T, error),
	encode func([]T) []byte,
	decode func([]byte) ([]T, error),
) ([]T, error) {
	lg := zctx.From(ctx).With(zap.String("key", key))

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		items, derr := decode(data)
		if derr == nil {
			return items, nil
		}
		lg.Warn("Discarding undecodable cache entry", zap.Error(derr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Cache read failed", zap.Error(err))
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encode(items), c.ttl).Err(); err != nil {
		lg.Warn("Cache write failed", zap.Error(err))
	}
	return items, nil
}

func encodeProducts(products []product.Product) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(p.ID)
		e.FieldStart("barcode")
		e.Str(p.Barcode)
		e.FieldStart("description")
		e.Str(p.Description)
		e.FieldStart("unit")
		e.Str(p.Unit)
		e.FieldStart("price")
		e.Str(p.Price.String())
		e.FieldStart("stock")
		e.Int(p.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()
	return append([]byte(nil), e.Bytes()...)
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Int64()
			case "barcode":
				p.Barcode, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "unit":
				p.Unit, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			case "stock":
				p.Stock, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

func encodeCustomers(customers []customer.Customer) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ArrStart()
	for _, c := range customers {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(c.ID)
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("document")
		e.Str(c.Document)
		e.FieldStart("phone")
		e.Str(c.Phone)
		e.FieldStart("email")
		e.Str(c.Email)
		e.ObjEnd()
	}
	e.ArrEnd()
	return append([]byte(nil), e.Bytes()...)
}

func decodeCustomers(data []byte) ([]customer.Customer, error) {
	var out []customer.Customer
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var c customer.Customer
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				c.ID, err = d.Int64()
			case "name":
				c.Name, err = d.Str()
			case "document":
				c.Document, err = d.Str()
			case "phone":
				c.Phone, err = d.Str()
			case "email":
				c.Email, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode customers")
	}
	return out, nil
}
