// Package httpmiddleware contains net/http middleware shared by the API
// server: request IDs, logging, tracing, CORS, rate limiting and panic
// recovery.
package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost one,
// so it sees the request first and the response last.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route pattern a request will be dispatched to, or
// false when no route matches.
type RouteFinder func(r *http.Request) (string, bool)

// MakeRouteFinder builds a RouteFinder from the patterns registered on mux.
// The method prefix of a pattern such as "POST /api/sales" is dropped.
func MakeRouteFinder(mux *http.ServeMux) RouteFinder {
	return func(r *http.Request) (string, bool) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return "", false
		}
		if _, path, ok := strings.Cut(pattern, " "); ok {
			return path, true
		}
		return pattern, true
	}
}

// WriteError writes the API error envelope
// {"success":false,"code":<status>,"message":...}.
func WriteError(w http.ResponseWriter, status int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
