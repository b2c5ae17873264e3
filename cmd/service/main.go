package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/claimbridge/internal/cache"
	"github.com/dropDatabas3/claimbridge/internal/config"
	"github.com/dropDatabas3/claimbridge/internal/flow"
	"github.com/dropDatabas3/claimbridge/internal/http/handlers"
	"github.com/dropDatabas3/claimbridge/internal/http/router"
	"github.com/dropDatabas3/claimbridge/internal/metrics"
	"github.com/dropDatabas3/claimbridge/internal/observability/logger"
	"github.com/dropDatabas3/claimbridge/internal/propstore"
	"github.com/dropDatabas3/claimbridge/internal/security/trigauth"
)

var version = "dev" // -ldflags "-X main.version=..."

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using system environment (%v)", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "claimbridge",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	store := propstore.NewHTTPStore(
		cfg.Store.BaseURL,
		cfg.Store.ClientID,
		cfg.Store.ClientSecret,
		cfg.Store.Audience,
		cfg.Store.Timeout,
	)

	ch, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.Memory.DefaultTTL,
	})
	if err != nil {
		lg.Fatal("cache init failed", logger.Err(err))
	}

	var verifier *trigauth.Verifier
	if cfg.TriggerAuth.SharedSecret != "" || cfg.TriggerAuth.JWKSURL != "" {
		verifier, err = trigauth.New(trigauth.Config{
			SharedSecret: cfg.TriggerAuth.SharedSecret,
			JWKSURL:      cfg.TriggerAuth.JWKSURL,
			Issuer:       cfg.TriggerAuth.Issuer,
			Audience:     cfg.TriggerAuth.Audience,
		})
		if err != nil {
			lg.Fatal("trigger auth init failed", logger.Err(err))
		}
	} else if cfg.App.Env == "prod" {
		lg.Fatal("trigger auth is mandatory in prod (TRIGGER_SHARED_SECRET or TRIGGER_JWKS_URL)")
	} else {
		lg.Warn("trigger auth disabled: deliveries are accepted unauthenticated")
	}

	metricsHandler, err := metrics.Register(prometheus.DefaultRegisterer)
	if err != nil {
		lg.Fatal("metrics init failed", logger.Err(err))
	}

	h := router.New(router.Deps{
		Triggers: handlers.NewTriggers(
			flow.NewCapturer(store, ch, cfg.Property.CategoryID),
			flow.NewProjector(store),
		),
		Verifier: verifier,
		Ready:    store,
		Metrics:  metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		lg.Info("claimbridge listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("env", cfg.App.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", logger.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	lg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("shutdown error", logger.Err(err))
	}
}
