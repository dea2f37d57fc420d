package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-gateway/internal/config"
	"membership-gateway/internal/domain/ports/repository"
	"membership-gateway/internal/infra/api"
	"membership-gateway/internal/infra/logging"
	"membership-gateway/internal/infra/metrics"
	"membership-gateway/internal/infra/payment"
	red "membership-gateway/internal/infra/redis"
	"membership-gateway/internal/infra/security"
	"membership-gateway/internal/infra/store"
	"membership-gateway/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- Token stores ----
	var manualStore, autoStore repository.TokenRepository
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := store.NewPgxPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		manualStore = store.NewPostgresStore(pool, "manual")
		autoStore = store.NewPostgresStore(pool, "auto")
	case "file":
		manualStore = store.NewFileStore(cfg.Store.ManualPath, logger)
		autoStore = store.NewFileStore(cfg.Store.AutoPath, logger)
	default:
		log.Fatalf("unknown store backend %q", cfg.Store.Backend)
	}

	// ---- Redis (optional: verdict cache + rate limiting) ----
	var verdictCache usecase.EmailVerdictCache
	var limiter api.Limiter = api.NewLocalLimiter()
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		verdictCache = red.NewVerdictCache(redisClient, cfg.Redis.TTL)
		limiter = red.NewRateLimiter(redisClient)
	}

	// ---- Stripe gateway ----
	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Fatalf("stripe gateway: %v", err)
	}

	// ---- Access passes (optional) ----
	var passes *security.AccessPassIssuer
	if cfg.AccessPass.Secret != "" {
		passes, err = security.NewAccessPassIssuer(cfg.AccessPass.Secret, cfg.AccessPass.TTL)
		if err != nil {
			log.Fatalf("access pass: %v", err)
		}
	} else {
		logger.Warn().Msg("access_pass.secret not set; validation responses carry no signed pass")
	}

	// ---- Use cases ----
	validateUC := usecase.NewValidationUseCase(manualStore, autoStore, gateway, verdictCache, logger, cfg.Runtime.Dev)
	issueUC := usecase.NewIssueUseCase(autoStore, gateway, verdictCache, logger, cfg.Runtime.Dev)
	checkoutUC := usecase.NewCheckoutUseCase(gateway, autoStore, cfg.Stripe, cfg.Site.PublicURL, logger)

	// ---- HTTP server ----
	metrics.MustRegister()
	srv := api.NewServer(validateUC, issueUC, checkoutUC, gateway, passes, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Routes(limiter, cfg.RateLimit.PerMinute),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.Store.Backend).Msg("membership gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}
