package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/pennyflow/backend/internal/bank"
	"github.com/pennyflow/backend/internal/config"
	"github.com/pennyflow/backend/internal/link"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/tokens"
	"github.com/pennyflow/backend/internal/truelayer"
)

// NewRouter creates the HTTP router
func NewRouter(cfg *config.Config, db *gorm.DB, sessions *session.Store, linker *link.Handler, manager *tokens.Manager, svc *bank.Service, client *truelayer.Client) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 5 attempts, then roughly one every 3 minutes (matches the original's
	// 5-per-15-minutes login limiter)
	authLimiter := NewRateLimiter(rate.Every(3*time.Minute), 5)
	authLimiter.CleanupOldLimiters()

	r.Route("/api", func(r chi.Router) {
		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(authLimiter))
			r.Post("/auth/register", HandleRegister(db))
			r.Post("/auth/login", HandleLogin(db, cfg))
		})
		r.Post("/auth/logout", HandleLogout())

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret, db))

			r.Get("/user/me", HandleGetCurrentUser())
			r.Patch("/auth/username", HandleUpdateEmail(db))
			r.Patch("/auth/password", HandleUpdatePassword(db))

			r.Route("/banks", func(r chi.Router) {
				r.Post("/link", HandleBeginLink(sessions, linker))
				r.Get("/callback", HandleLinkCallback(sessions, linker))

				r.Get("/accounts", HandleAccounts(manager, svc))
				r.Get("/transactions", HandleAllTransactions(manager, svc))
				r.Get("/transactions/month/{year}/{month}", HandleTransactionsByMonth(manager, svc))
				r.Get("/transactions/{accountID}", HandleAccountTransactions(manager, svc))
				r.Get("/balances", HandleBalances(manager, svc))
				r.Get("/income", HandleIncome(manager, svc))
				r.Get("/income/year/{year}", HandleIncomeByYear(manager, svc))
				r.Get("/income/month/{year}/{month}", HandleIncomeByMonth(manager, svc))
				r.Post("/extend-connection", HandleExtendConnection(manager, client))
			})
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
