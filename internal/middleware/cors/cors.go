package cors

import (
	"net/http"
	"strings"
)

// Config holds CORS configuration for the JSON API.
type Config struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  string
}

// DefaultConfig allows any origin, which matches a public API default.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAgeSeconds:  "600",
	}
}

// Middleware applies CORS headers and answers preflight requests.
type Middleware struct {
	cfg      Config
	wildcard bool
	origins  map[string]bool
}

func NewMiddleware(cfg Config) *Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		cfg = DefaultConfig()
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = DefaultConfig().AllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = DefaultConfig().AllowedHeaders
	}

	m := &Middleware{cfg: cfg, origins: make(map[string]bool)}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			m.wildcard = true
			continue
		}
		m.origins[o] = true
	}
	return m
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := m.allowOrigin(origin); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Methods", strings.Join(m.cfg.AllowedMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(m.cfg.AllowedHeaders, ", "))
			if m.cfg.MaxAgeSeconds != "" {
				h.Set("Access-Control-Max-Age", m.cfg.MaxAgeSeconds)
			}
			if !m.wildcard {
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) allowOrigin(origin string) string {
	if m.wildcard {
		return "*"
	}
	if origin != "" && m.origins[origin] {
		return origin
	}
	return ""
}
