package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/api/handlers"
	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/metrics"
	"github.com/baharkarakas/credits-backend/internal/middleware"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type RouterDeps struct {
	DevTokens bool
	RateRPS   int
	Log       *zap.Logger
	Tokens    *auth.TokenManager

	Users       *services.UserService
	Ledger      *services.LedgerService
	Leaderboard *services.LeaderboardService
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(log), middleware.HTTPMetrics, middleware.AccessLog(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader, "X-Cache"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	authn := middleware.NewAuthMiddleware(d.Tokens, d.DevTokens)
	limit := middleware.RateLimit(d.RateRPS)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	authH := handlers.NewAuthHandler(d.Users)
	credits := handlers.NewCreditsHandler(d.Ledger, log)
	board := handlers.NewLeaderboardHandler(d.Leaderboard)
	users := handlers.NewUsersHandler(d.Users, d.Ledger)

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/auth/register", authH.Register)
			r.Post("/auth/login", authH.Login)
			r.Post("/auth/refresh", authH.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.Auth, limit)

			// ---------- credits ----------
			r.Post("/credits/allocate", credits.Allocate)
			r.Post("/credits/allocate/bulk", credits.BulkAllocate)
			r.Post("/credits/redeem", credits.Redeem)
			r.Post("/credits/refund", credits.Refund)
			r.Post("/credits/adjust", credits.Adjust)
			r.Get("/credits/history/{userID}", credits.History)
			r.Post("/sales-pools/{userID}/fund", credits.FundSalesPool)

			// ---------- leaderboard ----------
			r.Get("/leaderboard", board.Get)
			r.Get("/leaderboard/rank/{userID}", board.UserRank)
			r.Get("/leaderboard/cache/stats", board.Stats)
			r.With(adminOnly).Post("/leaderboard/cache/invalidate", board.Invalidate)

			// ---------- users ----------
			r.With(adminOnly).Get("/users", users.List)
			r.Get("/users/{userID}", users.Get)
			r.Get("/users/{userID}/balance", users.Balance)
			r.Put("/users/{userID}/role", users.ChangeRole)
			r.Delete("/users/{userID}", users.Deactivate)
		})
	})

	return r
}
