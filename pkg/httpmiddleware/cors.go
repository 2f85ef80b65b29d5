package httpmiddleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
)

// CORSConfig lists the browser origins allowed to call the terminal API.
type CORSConfig struct {
	// Origins are matched case-insensitively. Empty or "*" allows any origin
	// unless AllowCredentials is set.
	Origins          []string
	AllowCredentials bool
	// MaxAge caches preflight answers. Zero omits the header.
	MaxAge time.Duration
}

// CORS lets browser-based terminals call the API with their PDV code in the
// Authorization header. Preflights are answered with 204 and never reach
// next.
func CORS(cfg CORSConfig) Middleware {
	wildcard := !cfg.AllowCredentials &&
		(len(cfg.Origins) == 0 || slices.Contains(cfg.Origins, "*"))
	allowed := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		allowed[strings.ToLower(o)] = o
	}
	var maxAge string
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			var allow string
			switch {
			case origin == "":
			case wildcard:
				allow = "*"
			default:
				allow = allowed[strings.ToLower(origin)]
			}
			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if origin != "" && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allow != "" {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allow != "" {
				h.Set("Access-Control-Expose-Headers", requestIDHeader)
			}
			next.ServeHTTP(w, r)
		})
	}
}
