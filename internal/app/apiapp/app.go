package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nyckye/starshop/backend/internal/config"
	"github.com/nyckye/starshop/backend/internal/infra/fragment"
	"github.com/nyckye/starshop/backend/internal/infra/telegram"
	toninfra "github.com/nyckye/starshop/backend/internal/infra/ton"
	"github.com/nyckye/starshop/backend/internal/jobs/cleanup"
	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
	redrepo "github.com/nyckye/starshop/backend/internal/repo/redis"
	anomalysvc "github.com/nyckye/starshop/backend/internal/services/anomaly"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	memosvc "github.com/nyckye/starshop/backend/internal/services/memo"
	notifysvc "github.com/nyckye/starshop/backend/internal/services/notify"
	purchasesvc "github.com/nyckye/starshop/backend/internal/services/purchase"
	ratesvc "github.com/nyckye/starshop/backend/internal/services/rate"
	submitsvc "github.com/nyckye/starshop/backend/internal/services/submit"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	securityEventRepo := pgrepo.NewSecurityEventRepo(pool)
	lookupRepo := pgrepo.NewLookupRepo(pool)

	broker := fragment.New(fragment.Config{
		Hash:            cfg.Fragment.Hash,
		StelSSID:        cfg.Fragment.StelSSID,
		StelDT:          cfg.Fragment.StelDT,
		StelTONToken:    cfg.Fragment.StelTONToken,
		StelToken:       cfg.Fragment.StelToken,
		Address:         cfg.Fragment.Address,
		PublicKey:       cfg.Fragment.PublicKey,
		WalletStateInit: cfg.Fragment.WalletStateInit,
		LookupTimeout:   cfg.Fragment.LookupTimeout,
		BuyLinkTimeout:  cfg.Fragment.BuyLinkTimeout,
	}, log)

	wallet := toninfra.New(toninfra.Config{
		Endpoint: cfg.TON.SignerEndpoint,
		APIKey:   cfg.TON.APIKey,
		Mnemonic: cfg.TON.MnemonicWords(),
		Timeout:  cfg.TON.Timeout,
	}, log)

	submitter, err := submitsvc.New(submitsvc.Dependencies{
		Wallet: wallet,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("create submitter: %w", err)
	}

	verifier := authsvc.NewWebAppVerifier(cfg.Auth.BotToken)
	jwtManager := authsvc.NewJWTManager(cfg.Auth.AdminJWTSecret, cfg.Auth.AdminJWTTTL)
	rateLimiter := ratesvc.NewLimiter(rateRepo)
	anomalyFilter := anomalysvc.NewFilter(anomalysvc.Dependencies{
		Events: securityEventRepo,
		Logger: log,
	})

	var notifier *notifysvc.Service
	if cfg.Bot.Token != "" {
		bot, err := telegram.NewBot(cfg.Bot.Token)
		if err != nil {
			log.Warn("notification bot init failed, continuing without notifications", zap.Error(err))
		} else {
			notifier = notifysvc.New(notifysvc.Dependencies{
				Sender:      bot,
				AdminChatID: cfg.Bot.AdminChatID,
				Logger:      log,
			})
		}
	}

	purchaseService, err := purchasesvc.New(purchasesvc.Config{
		MinStars:        cfg.Limits.MinStars,
		MaxStars:        cfg.Limits.MaxStars,
		RequireInitData: cfg.Auth.RequireInitData,
		HistoryLimit:    cfg.Limits.HistoryLimit,
	}, purchasesvc.Dependencies{
		Broker:    broker,
		Memos:     memosvc.NewDecoder(log),
		Submitter: submitter,
		Ledger:    purchaseRepo,
		Verifier:  verifier,
		Lookups:   lookupRepo,
		Notifier:  notifier,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("create purchase service: %w", err)
	}

	if pool != nil {
		cleanup.New(purchaseRepo, time.Hour, log).Start(ctx)
	}

	r.Use(AnomalyMiddleware(anomalyFilter))

	RegisterRoutes(r, Dependencies{
		PurchaseService: purchaseService,
		AnomalyFilter:   anomalyFilter,
		RateLimiter:     rateLimiter,
		Verifier:        verifier,
		JWTManager:      jwtManager,
		PurchaseRepo:    purchaseRepo,
		SecurityEvents:  securityEventRepo,
		Wallet:          wallet,
		Logger:          log,
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
