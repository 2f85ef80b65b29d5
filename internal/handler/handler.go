// Package handler exposes the terminal API over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
	"github.com/xenking/pdv-backend/internal/domain/sale"
	"github.com/xenking/pdv-backend/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Authenticator resolves the Authorization header to an operator.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*auth.Actor, error)
}

// SaleCreator records sales.
type SaleCreator interface {
	CreateSale(ctx context.Context, actor auth.Actor, req sale.Request) (*sale.Receipt, error)
}

// Handler serves /api routes.
type Handler struct {
	auth      Authenticator
	products  product.Repository
	customers customer.Repository
	sales     SaleCreator
}

// NewHandler creates a Handler.
func NewHandler(
	authenticator Authenticator,
	products product.Repository,
	customers customer.Repository,
	sales SaleCreator,
) *Handler {
	return &Handler{
		auth:      authenticator,
		products:  products,
		customers: customers,
		sales:     sales,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("GET /api/products", h.authenticated(h.ListProducts))
	mux.HandleFunc("GET /api/customers", h.authenticated(h.ListCustomers))
	mux.HandleFunc("POST /api/sales", h.authenticated(h.CreateSale))
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor)

// authenticated resolves the Authorization header before calling next.
func (h *Handler) authenticated(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		ctx := zctx.With(r.Context(), zap.Int64("operator_id", actor.ID))
		next(w, r.WithContext(ctx), *actor)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &sale.InvalidInputError{Reason: "invalid request body"}
	}
	return data, nil
}

// writeOK writes {"success":true,<fields>}.
func writeOK(w http.ResponseWriter, fields func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	fields(e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

// writeError maps err to a status and writes the error envelope. Server
// errors are logged; their details never reach the client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, message)
}

func classify(err error) (int, string) {
	var (
		notFound   *sale.ProductNotFoundError
		noCustomer *sale.CustomerNotFoundError
		noStock    *sale.InsufficientStockError
		invalid    *sale.InvalidInputError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Reason
	case errors.Is(err, auth.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.As(err, &notFound):
		return http.StatusUnprocessableEntity, notFound.Error()
	case errors.As(err, &noCustomer):
		return http.StatusUnprocessableEntity, noCustomer.Error()
	case errors.As(err, &noStock):
		return http.StatusConflict, noStock.Error()
	case errors.Is(err, sale.ErrConcurrentUpdate):
		return http.StatusConflict, "sale conflicted with a concurrent sale, retry"
	case errors.Is(err, sale.ErrTransactionFailed):
		return http.StatusInternalServerError, "failed to save sale"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
