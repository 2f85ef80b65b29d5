package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/pdv-backend/internal/domain/auth"
	"github.com/xenking/pdv-backend/internal/domain/customer"
	"github.com/xenking/pdv-backend/internal/domain/product"
	"github.com/xenking/pdv-backend/internal/domain/sale"
)

// --- Mock implementations ---

type mockAuth struct {
	codes map[string]auth.Actor
	err   error
	seen  []string
}

func (m *mockAuth) Authenticate(_ context.Context, credential string) (*auth.Actor, error) {
	m.seen = append(m.seen, credential)
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.codes[strings.TrimPrefix(credential, "Bearer ")]
	if !ok {
		return nil, auth.ErrAuthRequired
	}
	return &a, nil
}

type mockProducts struct {
	products []product.Product
	err      error
}

func (m *mockProducts) List(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

type mockCustomers struct {
	customers []customer.Customer
}

func (m *mockCustomers) List(context.Context) ([]customer.Customer, error) {
	return m.customers, nil
}

type mockSales struct {
	receipt *sale.Receipt
	err     error

	calls     int
	lastActor auth.Actor
	lastReq   sale.Request
}

func (m *mockSales) CreateSale(_ context.Context, actor auth.Actor, req sale.Request) (*sale.Receipt, error) {
	m.calls++
	m.lastActor = actor
	m.lastReq = req
	return m.receipt, m.err
}

// --- Helpers ---

var cashier = auth.Actor{ID: 9, Name: "Caixa 01", Email: "caixa01@example.com"}

type fixture struct {
	auth  *mockAuth
	sales *mockSales
	mux   *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{
		auth:  &mockAuth{codes: map[string]auth.Actor{"4321": cashier}},
		sales: &mockSales{},
		mux:   http.NewServeMux(),
	}
	h := NewHandler(f.auth,
		&mockProducts{products: []product.Product{{
			ID: 7, Barcode: "7891000000000", Description: "Café 500g", Unit: "PCT",
			Price: decimal.RequireFromString("21.5"), Stock: 4,
		}}},
		&mockCustomers{customers: []customer.Customer{{ID: 1, Name: "Consumidor Final"}}},
		f.sales,
	)
	h.Register(f.mux)
	return f
}

func (f *fixture) do(method, path, credential, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

// --- Login ---

func TestLogin(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/login", "", `{"pdv_code":"4321"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":9,"name":"Caixa 01","email":"caixa01@example.com"}}`, w.Body.String())
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"EmptyBody", ``, http.StatusBadRequest, "invalid JSON body"},
		{"MissingCode", `{}`, http.StatusBadRequest, "pdv_code is required"},
		{"NullCode", `{"pdv_code":null}`, http.StatusBadRequest, "pdv_code is required"},
		{"BlankCode", `{"pdv_code":"  "}`, http.StatusBadRequest, "pdv_code is required"},
		{"WrongType", `{"pdv_code":4321}`, http.StatusBadRequest, "pdv_code: must be a string"},
		{"TrailingData", `{"pdv_code":"4321"} trailing`, http.StatusBadRequest, "invalid JSON body"},
		{"TwoObjects", `{"pdv_code":"4321"}{"pdv_code":"0000"}`, http.StatusBadRequest, "invalid JSON body"},
		{"UnknownCode", `{"pdv_code":"0000"}`, http.StatusUnauthorized, "authentication required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFixture().do(http.MethodPost, "/api/login", "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t,
				`{"success":false,"code":`+strconv.Itoa(tt.status)+`,"message":"`+tt.msg+`"}`,
				w.Body.String())
		})
	}
}

func TestAuth_StorageFailureIsServerError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	f := newFixture()
	f.auth.err = errors.Wrap(errors.New("connection refused"), "lookup operator")

	for _, tc := range []struct{ method, path, credential, body string }{
		{http.MethodPost, "/api/login", "", `{"pdv_code":"4321"}`},
		{http.MethodPost, "/api/sales", "4321", `{"items":[{"product_id":7,"quantity":1}]}`},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req = req.WithContext(zctx.Base(req.Context(), zap.New(core)))
		if tc.credential != "" {
			req.Header.Set("Authorization", tc.credential)
		}
		w := httptest.NewRecorder()
		f.mux.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code, tc.path)
		assert.JSONEq(t, `{"success":false,"code":500,"message":"internal server error"}`, w.Body.String())
	}
	assert.Equal(t, 2, logs.FilterMessage("Request failed").Len())
	assert.Zero(t, f.sales.calls)
}

// --- Catalog ---

func TestListProducts(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/products", "Bearer 4321", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"id":7,"barcode":"7891000000000","description":"Café 500g","unit":"PCT","price":21.50,"stock":4}
	]}`, w.Body.String())
	assert.Equal(t, []string{"Bearer 4321"}, f.auth.seen)
}

func TestListCustomers(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/api/customers", "4321", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"id":1,"name":"Consumidor Final","document":"","phone":"","email":""}
	]}`, w.Body.String())
}

func TestCatalog_RequiresAuth(t *testing.T) {
	for _, path := range []string{"/api/products", "/api/customers"} {
		w := newFixture().do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestListProducts_RepositoryFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewHandler(&mockAuth{codes: map[string]auth.Actor{"4321": cashier}},
		&mockProducts{err: errors.New("connection refused")}, &mockCustomers{}, &mockSales{})
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req = req.WithContext(zctx.Base(req.Context(), zap.New(core)))
	req.Header.Set("Authorization", "4321")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"code":500,"message":"internal server error"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Equal(t, 1, logs.FilterMessage("Request failed").Len())
}

// --- Sales ---

func TestCreateSale(t *testing.T) {
	f := newFixture()
	f.sales.receipt = &sale.Receipt{SaleID: 31, Total: decimal.RequireFromString("20"), CustomerID: 3}

	w := f.do(http.MethodPost, "/api/sales", "4321",
		`{"customer_id":3,"items":[{"product_id":7,"quantity":2},{"product_id":8,"quantity":1,"note":"x"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"sale_id":31,"total":20.00,"customer_id":3}`, w.Body.String())
	assert.Contains(t, w.Body.String(), `"total":20.00`)
	assert.Equal(t, cashier, f.sales.lastActor)
	assert.Equal(t, sale.Request{
		CustomerID: 3,
		Items:      []sale.LineRequest{{ProductID: 7, Quantity: 2}, {ProductID: 8, Quantity: 1}},
	}, f.sales.lastReq)
}

func TestCreateSale_NullCustomerMeansDefault(t *testing.T) {
	for _, body := range []string{
		`{"customer_id":null,"items":[{"product_id":7,"quantity":1}]}`,
		`{"items":[{"product_id":7,"quantity":1}]}`,
	} {
		f := newFixture()
		f.sales.receipt = &sale.Receipt{SaleID: 1, Total: decimal.RequireFromString("21.5"), CustomerID: 1}

		w := f.do(http.MethodPost, "/api/sales", "4321", body)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, f.sales.lastReq.CustomerID)
	}
}

func TestCreateSale_MalformedBodyNeverReachesProcessor(t *testing.T) {
	for _, body := range []string{
		``,
		`[]`,
		`{"items":[{"product_id":"7","quantity":1}]}`,
		`{"items":[{"product_id":7,"quantity":1.5}]}`,
		`{"customer_id":"abc","items":[]}`,
		`{"items":{}}`,
		`{"items":[{"product_id":7,"quantity":2}]} trailing`,
		`{"items":[{"product_id":7,"quantity":2}]}{"items":[]}`,
		`{"items":[{"product_id":7,"quantity":2}]}]`,
	} {
		f := newFixture()
		w := f.do(http.MethodPost, "/api/sales", "4321", body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Zero(t, f.sales.calls, body)
	}
}

func TestCreateSale_TrailingWhitespaceAccepted(t *testing.T) {
	f := newFixture()
	f.sales.receipt = &sale.Receipt{SaleID: 1, Total: decimal.RequireFromString("43"), CustomerID: 1}

	w := f.do(http.MethodPost, "/api/sales", "4321", "{\"items\":[{\"product_id\":7,\"quantity\":2}]}\n\t ")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.sales.calls)
}

func TestCreateSale_MalformedBodyReason(t *testing.T) {
	tests := []struct {
		body string
		msg  string
	}{
		{`{"customer_id":"abc","items":[]}`, "customer_id: must be an integer"},
		{`{"items":{}}`, "items: must be an array"},
		{`{"items":[7]}`, "items[0]: must be an object"},
		{`{"items":[{"product_id":7,"quantity":1},{"product_id":"8","quantity":1}]}`, "items[1].product_id: must be an integer"},
		{`{"items":[{"product_id":7,"quantity":1.5}]}`, "items[0].quantity: must be an integer"},
		{`{"items":[{"product_id":7,"quantity":99999999999}]}`, "items[0].quantity: out of range"},
		{`{"items":[}`, "invalid JSON body"},
		{`{"items":[]} {}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			w := newFixture().do(http.MethodPost, "/api/sales", "4321", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"success":false,"code":400,"message":"`+tt.msg+`"}`, w.Body.String())
			assert.NotContains(t, w.Body.String(), "callback")
		})
	}
}

func TestCreateSale_RequiresAuth(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/sales", "9999", `{"items":[{"product_id":7,"quantity":1}]}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.sales.calls)
}

func TestCreateSale_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"EmptyItems", sale.ErrEmptyItems, http.StatusBadRequest, "items required"},
		{"ProductNotFound", &sale.ProductNotFoundError{ProductID: 99}, http.StatusUnprocessableEntity, "product 99 not found"},
		{"CustomerNotFound", &sale.CustomerNotFoundError{CustomerID: 404}, http.StatusUnprocessableEntity, "customer 404 not found"},
		{
			"InsufficientStock",
			&sale.InsufficientStockError{ProductID: 7, Description: "Café 500g", Available: 1, Requested: 2},
			http.StatusConflict,
			"insufficient stock for Café 500g (product 7): requested 2, available 1",
		},
		{
			"TransactionFailed",
			&sale.TransactionError{Op: "commit", Err: errors.New("connection reset by peer")},
			http.StatusInternalServerError,
			"failed to save sale",
		},
		{
			"ConcurrentUpdate",
			&sale.TransactionError{Op: "get product 8", Err: errors.Wrap(sale.ErrConcurrentUpdate, "deadlock detected")},
			http.StatusConflict,
			"sale conflicted with a concurrent sale, retry",
		},
		{"Unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sales.err = tt.err

			w := f.do(http.MethodPost, "/api/sales", "4321", `{"items":[{"product_id":7,"quantity":2}]}`)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t,
				`{"success":false,"code":`+strconv.Itoa(tt.status)+`,"message":"`+tt.msg+`"}`,
				w.Body.String())
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/api/sales", "4321", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
