package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pdv-backend/internal/domain/auditlog"
	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/product"
)

const defaultAuditTimeout = 3 * time.Second

// Config holds processor settings that come from application configuration.
type Config struct {
	// DefaultCustomerID is used when a request does not name a customer.
	DefaultCustomerID int64
	// AuditTimeout bounds the post-commit audit log write. Zero means 3s.
	AuditTimeout time.Duration
}

// CommitHook runs after a sale has been committed and audited. Hooks must
// not fail the sale; they receive a context detached from request
// cancellation.
type CommitHook func(ctx context.Context, r *Receipt)

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the time source used for sale and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithCommitHook registers a hook run after every committed sale.
func WithCommitHook(h CommitHook) Option {
	return func(p *Processor) {
		p.hooks = append(p.hooks, h)
	}
}

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Processor) {
		p.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) {
		p.meterProvider = mp
	}
}

// Processor creates sales. Each CreateSale call runs in its own store
// transaction; the Processor itself is safe for concurrent use.
type Processor struct {
	store             Store
	audit             auditlog.Sink
	defaultCustomerID int64
	auditTimeout      time.Duration
	now               func() time.Time
	hooks             []CommitHook

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	failed         metric.Int64Counter
}

// NewProcessor creates a Processor writing through store and logging
// committed sales to audit.
func NewProcessor(store Store, audit auditlog.Sink, cfg Config, opts ...Option) (*Processor, error) {
	if cfg.DefaultCustomerID <= 0 {
		return nil, errors.New("default customer id must be positive")
	}
	p := &Processor{
		store:             store,
		audit:             audit,
		defaultCustomerID: cfg.DefaultCustomerID,
		auditTimeout:      cfg.AuditTimeout,
		now:               time.Now,
		tracerProvider:    tracenoop.NewTracerProvider(),
		meterProvider:     metricnoop.NewMeterProvider(),
	}
	if p.auditTimeout <= 0 {
		p.auditTimeout = defaultAuditTimeout
	}
	for _, opt := range opts {
		opt(p)
	}

	const scope = "github.com/xenking/pdv-backend/internal/domain/sale"
	p.tracer = p.tracerProvider.Tracer(scope)
	meter := p.meterProvider.Meter(scope)

	var err error
	if p.created, err = meter.Int64Counter("pdv.sales.created",
		metric.WithDescription("Sales committed"),
	); err != nil {
		return nil, errors.Wrap(err, "sales created counter")
	}
	if p.failed, err = meter.Int64Counter("pdv.sales.failed",
		metric.WithDescription("Sale attempts aborted, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "sales failed counter")
	}

	return p, nil
}

// CreateSale validates req, then inserts the sale header, its items and the
// stock decrements in one transaction, processing items in request order.
// The first failure rolls everything back and is returned as is: a
// validation error, *CustomerNotFoundError, *ProductNotFoundError,
// *InsufficientStockError or an error matching ErrTransactionFailed.
//
// After commit the sale is appended to the audit log under actor's name.
// Audit failures are logged and do not affect the result.
func (p *Processor) CreateSale(ctx context.Context, actor auth.Actor, req Request) (_ *Receipt, rerr error) {
	ctx, span := p.tracer.Start(ctx, "sale.CreateSale",
		trace.WithAttributes(
			attribute.Int64("pdv.operator_id", actor.ID),
			attribute.Int("pdv.items", len(req.Items)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			p.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(rerr))))
		}
		span.End()
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	customerID := req.CustomerID
	if customerID == 0 {
		customerID = p.defaultCustomerID
	}

	receipt, err := p.persist(ctx, actor, customerID, req.Items)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("pdv.sale_id", receipt.SaleID))
	p.created.Add(ctx, 1)

	detached := context.WithoutCancel(ctx)
	p.appendAudit(detached, actor, receipt)
	for _, h := range p.hooks {
		h(detached, receipt)
	}

	return receipt, nil
}

func (p *Processor) persist(ctx context.Context, actor auth.Actor, customerID int64, lines []LineRequest) (_ *Receipt, rerr error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, txFailed("begin", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	saleID, err := tx.InsertSale(ctx, &Sale{
		CreatedAt:  p.now(),
		Total:      decimal.Zero,
		Status:     StatusOpen,
		CustomerID: customerID,
		OperatorID: actor.ID,
	})
	if err != nil {
		var cnf *CustomerNotFoundError
		if errors.As(err, &cnf) {
			return nil, cnf
		}
		return nil, txFailed("insert sale", err)
	}

	total := decimal.Zero
	for _, line := range lines {
		prod, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, txFailed(fmt.Sprintf("get product %d", line.ProductID), err)
		}

		if prod.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   prod.ID,
				Description: prod.Description,
				Available:   prod.Stock,
				Requested:   line.Quantity,
			}
		}

		subtotal := prod.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(subtotal)

		if err := tx.InsertItem(ctx, &Item{
			SaleID:    saleID,
			ProductID: prod.ID,
			Quantity:  line.Quantity,
			UnitPrice: prod.Price,
			Subtotal:  subtotal,
		}); err != nil {
			return nil, txFailed(fmt.Sprintf("insert item for product %d", prod.ID), err)
		}

		if err := tx.DecrementStock(ctx, prod.ID, line.Quantity); err != nil {
			return nil, txFailed(fmt.Sprintf("decrement stock of product %d", prod.ID), err)
		}
	}

	if err := tx.SetTotal(ctx, saleID, total); err != nil {
		return nil, txFailed("set total", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, txFailed("commit", err)
	}

	return &Receipt{
		SaleID:     saleID,
		Total:      total,
		CustomerID: customerID,
	}, nil
}

func (p *Processor) appendAudit(ctx context.Context, actor auth.Actor, r *Receipt) {
	ctx, cancel := context.WithTimeout(ctx, p.auditTimeout)
	defer cancel()

	entry := auditlog.Entry{
		Task:      fmt.Sprintf("Sale %d created by operator %s", r.SaleID, actor.Name),
		At:        p.now(),
		ActorName: actor.Name,
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		zctx.From(ctx).Warn("Audit log append failed",
			zap.Int64("sale_id", r.SaleID),
			zap.Int64("operator_id", actor.ID),
			zap.Error(err),
		)
	}
}

func validateRequest(req Request) error {
	if req.CustomerID < 0 {
		return &InvalidInputError{Reason: "customer id must not be negative"}
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, line := range req.Items {
		if line.ProductID <= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("item %d: product id is required", i+1)}
		}
		if line.Quantity <= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("item %d: quantity must be greater than 0", i+1)}
		}
	}
	return nil
}
