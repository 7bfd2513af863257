package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Content-Type, Authorization, X-Request-Id"
	corsAllowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

type corsPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newCORSPolicy(allowedOrigins []string) corsPolicy {
	p := corsPolicy{origins: map[string]struct{}{}}
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS lets the landing page call the API from its own origin.
// "*" in allowedOrigins echoes any Origin back.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := policy.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
