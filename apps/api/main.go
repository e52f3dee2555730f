package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	integrationshandler "github.com/lumacare/backoffice/domains/integrations/be/handler"
	signaturesconfig "github.com/lumacare/backoffice/domains/signatures/be/config"
	signatureshandler "github.com/lumacare/backoffice/domains/signatures/be/handler"
	"github.com/lumacare/backoffice/domains/signatures/be/notify"
	signaturesrepo "github.com/lumacare/backoffice/domains/signatures/be/repo"
	signaturesservice "github.com/lumacare/backoffice/domains/signatures/be/service"
	platformauth "github.com/lumacare/backoffice/platform/go/auth"
	platformlogging "github.com/lumacare/backoffice/platform/go/logging"
	platformmiddleware "github.com/lumacare/backoffice/platform/go/middleware"
	"github.com/lumacare/backoffice/platform/go/persistence"
	tenantmiddleware "github.com/lumacare/backoffice/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	AuthJWTSecret   string        `env:"AUTH_JWT_SECRET,required"`

	// Platform-wide fallbacks used when an agency has no setting of its own.
	BoldSignAPIKey string `env:"BOLDSIGN_API_KEY"`
	JotFormAPIKey  string `env:"JOTFORM_API_KEY"`
	ResendAPIKey   string `env:"RESEND_API_KEY"`
	ResendFrom     string `env:"RESEND_FROM" envDefault:"no-reply@lumacare.app"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("apply database bootstrap", zap.Error(err))
	}

	settingsStore, err := persistence.NewAgencySettingsStore(pool)
	if err != nil {
		logger.Fatal("init agency settings store", zap.Error(err))
	}

	resolver := signaturesconfig.NewResolver(settingsStore, signaturesconfig.Fallbacks{
		BoldSignAPIKey: cfg.BoldSignAPIKey,
		JotFormAPIKey:  cfg.JotFormAPIKey,
		ResendAPIKey:   cfg.ResendAPIKey,
		ResendFrom:     cfg.ResendFrom,
	})
	source := signaturesconfig.NewSource(resolver)

	dispatcher := notify.NewDispatcher(resolver, nil)

	signaturesStore := signaturesrepo.NewPostgresRepository(pool)
	signaturesSvc := signaturesservice.New(signaturesStore, source, dispatcher)
	signaturesHTTPHandler := signatureshandler.New(signaturesSvc, source, logger)
	integrationsHTTPHandler := integrationshandler.New(source, resolver, nil, logger)

	verify := platformauth.HS256Verifier([]byte(cfg.AuthJWTSecret))
	authMiddleware := platformauth.Bearer(verify, platformauth.DefaultCredentialExtractor)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(tenantmiddleware.WithAgencyScope())

	apiRouter.Group(signaturesHTTPHandler.Routes)
	apiRouter.Group(integrationsHTTPHandler.Routes)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
