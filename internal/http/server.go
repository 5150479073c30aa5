package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"expensely/internal/auth"
	"expensely/internal/cache"
	"expensely/internal/core"
	"expensely/internal/services"
)

// Options configures the API server.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	PageSizeDefault    int
	PageSizeMax        int
	SecureCookie       bool
}

type Server struct {
	http.Server

	authSvc *services.AuthService
	expSvc  *services.ExpenseService
	tokens  *auth.TokenManager

	rateLimiter *rateLimiter

	// The category registry is seeded and read-mostly; one cached entry
	// with a short TTL keeps it off the hot path.
	categoryCache *cache.LRUCache[[]core.Category]

	pageSizeDefault int
	pageSizeMax     int
	secureCookie    bool

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(opts Options, authSvc *services.AuthService, expSvc *services.ExpenseService, tokens *auth.TokenManager) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		authSvc:         authSvc,
		expSvc:          expSvc,
		tokens:          tokens,
		rateLimiter:     newRateLimiter(opts.RateLimitPerMinute),
		categoryCache:   cache.NewLRUCache[[]core.Category](1, 5*time.Minute),
		pageSizeDefault: opts.PageSizeDefault,
		pageSizeMax:     opts.PageSizeMax,
		secureCookie:    opts.SecureCookie,
	}
	if s.pageSizeDefault < 1 {
		s.pageSizeDefault = 20
	}
	if s.pageSizeMax < s.pageSizeDefault {
		s.pageSizeMax = s.pageSizeDefault
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /auth/register", s.wrap(s.handleRegister))
	mux.HandleFunc("POST /auth/login", s.wrap(s.handleLogin))
	mux.HandleFunc("POST /auth/logout", s.wrapAuth(s.handleLogout))

	mux.HandleFunc("GET /expenses", s.wrapAuth(s.handleListExpenses))
	mux.HandleFunc("POST /expenses", s.wrapAuth(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses/{id}", s.wrapAuth(s.handleGetExpense))
	mux.HandleFunc("PUT /expenses/{id}", s.wrapAuth(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.wrapAuth(s.handleDeleteExpense))

	mux.HandleFunc("GET /categories", s.wrapAuth(s.handleListCategories))

	return s
}

// wrap applies the common middleware chain: request id + logging,
// security headers, and rate limiting on mutating methods.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return s.withRequestLog(s.withSecurityHeaders(s.withRateLimit(next)))
}

// wrapAuth is wrap plus session verification.
func (s *Server) wrapAuth(next http.HandlerFunc) http.HandlerFunc {
	return s.wrap(s.withAuth(next))
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
