package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/config"
	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
	anomalysvc "github.com/nyckye/starshop/backend/internal/services/anomaly"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	purchasesvc "github.com/nyckye/starshop/backend/internal/services/purchase"
	ratesvc "github.com/nyckye/starshop/backend/internal/services/rate"
	"github.com/nyckye/starshop/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	PurchaseService *purchasesvc.Service
	AnomalyFilter   *anomalysvc.Filter
	RateLimiter     *ratesvc.Limiter
	Verifier        *authsvc.WebAppVerifier
	JWTManager      *authsvc.JWTManager
	PurchaseRepo    *pgrepo.PurchaseRepo
	SecurityEvents  *pgrepo.SecurityEventRepo
	Wallet          handlers.BalanceProvider
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	purchaseHandler := handlers.NewPurchaseHandler(deps.PurchaseService)
	lookupHandler := handlers.NewLookupHandler(deps.PurchaseService)
	priceHandler := handlers.NewPriceHandler(deps.Config.Limits.MinStars, deps.Config.Limits.MaxStars)
	walletHandler := handlers.NewWalletHandler(deps.Wallet)
	adminHandler := handlers.NewAdminHandler(handlers.AdminHandlerDeps{
		AdminToken: deps.Config.Auth.AdminToken,
		Tokens:     deps.JWTManager,
		Stats:      deps.PurchaseRepo,
		Events:     deps.SecurityEvents,
		Wallet:     deps.Wallet,
	})

	purchaseRateMW := RateLimitMiddleware(deps.RateLimiter, deps.Verifier, ratesvc.ActionPurchase, ratesvc.Rule{
		Limit:  deps.Config.Limits.PurchasePerWindow,
		Window: deps.Config.Limits.PurchaseWindow,
	}, deps.Logger)
	lookupRateMW := RateLimitMiddleware(deps.RateLimiter, deps.Verifier, ratesvc.ActionLookup, ratesvc.Rule{
		Limit:  deps.Config.Limits.LookupPerWindow,
		Window: deps.Config.Limits.LookupWindow,
	}, deps.Logger)
	adminMW := AdminAuthMiddleware(deps.JWTManager, deps.Logger)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(lookupRateMW).Post("/check_user", lookupHandler.CheckUser)
		r.Post("/calculate_price", priceHandler.Calculate)
		r.With(purchaseRateMW).Post("/purchase", purchaseHandler.Purchase)
		r.Get("/wallet/balance", walletHandler.Balance)
		r.Get("/purchases", purchaseHandler.History)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.With(adminMW).Get("/health", adminHandler.Health)
		r.With(adminMW).Get("/statistics", adminHandler.Statistics)
		r.With(adminMW).Get("/security-events", adminHandler.SecurityEvents)
	})
}
