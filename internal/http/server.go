// Package http wires the JSON API over the storage engine: routing,
// authentication middleware, and the request handlers. Everything here is
// thin glue; the persistence contracts live in internal/storage.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wealthwise/internal/auth"
	"wealthwise/internal/config"
	"wealthwise/internal/core"
	"wealthwise/internal/log"
	"wealthwise/internal/middleware/cors"
	"wealthwise/internal/middleware/ratelimit"
	"wealthwise/internal/middleware/trace"
	"wealthwise/internal/storage"
)

// Store is the persistence surface the handlers consume.
type Store interface {
	Create(ctx context.Context, e core.Entity) error
	Update(ctx context.Context, e core.Entity) error
	Delete(ctx context.Context, e core.Entity) error
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
	FindUserBy(ctx context.Context, field, value string) (*core.User, error)
	AppendTransactionID(ctx context.Context, userID, txnID string) error
	RemoveTransactionID(ctx context.Context, userID, txnID string) error
	Paginate(ctx context.Context, user *core.User, page, pageSize int) (*storage.TransactionPage, error)
	PaginateByPeriod(ctx context.Context, user *core.User, year, month, page, pageSize int) (*storage.TransactionPage, error)
}

type Server struct {
	http.Server

	store   Store
	issuer  *auth.TokenIssuer
	logger  *log.Logger
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
}

func NewServer(cfg *config.Config, store Store, logger *log.Logger) *Server {
	s := &Server{
		store:   store,
		issuer:  auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:  trace.NewMiddleware(),
	}

	corsMW := cors.NewMiddleware(cors.Config{AllowedOrigins: cfg.CORSOrigins})

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	public := api.NewRoute().Subrouter()
	public.Use(s.limiter.Middleware)
	public.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(s.authMiddleware)
	private.HandleFunc("/transactions", s.handleAddTransaction).Methods(http.MethodPost)
	private.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	private.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	private.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	private.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)
	private.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, notFound)
	})

	var handler http.Handler = r
	handler = corsMW.Middleware(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server.Addr = ":" + cfg.Port
	s.Server.Handler = handler
	return s
}

// Close releases server-owned resources beyond the listener.
func (s *Server) Close() error {
	s.limiter.Shutdown()
	return s.Server.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// contextKey type for request context values set by middleware.
type contextKey string

const userIDKey contextKey = "user_id"

// authMiddleware validates the bearer token and stores the authenticated
// user id in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing authorization token"})
			return
		}
		userID, err := s.issuer.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser loads the authenticated user's document for this request.
func (s *Server) currentUser(r *http.Request) (*core.User, error) {
	userID, _ := r.Context().Value(userIDKey).(string)
	if userID == "" {
		return nil, storage.ErrNotFound
	}
	ctx, cancel := requestScope(r)
	defer cancel()
	return s.store.GetUser(ctx, userID)
}

// requestScope bounds every storage call made on behalf of one request.
func requestScope(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
