package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/adapter/artifact"
	httpHandler "credit-mint-engine/internal/adapter/http/handler"
	pgStorage "credit-mint-engine/internal/adapter/storage/postgres"
	redisStorage "credit-mint-engine/internal/adapter/storage/redis"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/internal/service"
	"credit-mint-engine/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("CME_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("generator", cfg.Generator.Provider).
		Msg("Starting Credit Mint Engine")

	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	mintRequestRepo := pgStorage.NewMintRequestRepo(pool)
	assetRepo := pgStorage.NewAssetRepo(pool)
	receiptRepo := pgStorage.NewReceiptRepo(pool)
	supplyRepo := pgStorage.NewSupplyRepo(pool)
	nonceRepo := pgStorage.NewNonceRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)

	// Redis stores
	receiptCache := redisStorage.NewReceiptCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Services
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))
	sigSvc := service.NewHMACSignatureService()
	mintLog := logger.Component(log, "mint")
	guard := service.NewIdempotencyGuard(mintRequestRepo, receiptRepo, receiptCache, cfg.Idempotency.CacheTTL, mintLog)
	mintSvc := service.NewMintService(
		walletRepo,
		ledgerRepo,
		mintRequestRepo,
		assetRepo,
		receiptRepo,
		newGenerator(cfg.Generator, logger.Component(log, "generator")),
		guard,
		auditSvc,
		cfg.Mint,
		mintLog,
	)
	walletSvc := service.NewWalletService(walletRepo, ledgerRepo, auditSvc, cfg.Mint.DefaultBalance, logger.Component(log, "wallet"))
	supplySvc := service.NewSupplyService(supplyRepo, auditSvc, cfg.Supply, logger.Component(log, "supply"))

	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	} else {
		log.Warn().Msg("jwt.secret is empty, owner routes are unauthenticated")
	}
	if cfg.Signing.Secret == "" {
		log.Warn().Msg("signing.secret is empty, signed routes will answer SERVER_MISCONFIGURED")
	}

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		MintSvc:        mintSvc,
		AssetSvc:       service.NewAssetService(assetRepo),
		WalletSvc:      walletSvc,
		ReceiptSvc:     service.NewReceiptService(receiptRepo),
		SupplySvc:      supplySvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		NonceRepo:      nonceRepo,
		TokenSvc:       tokenSvc,
		SigningCfg:     cfg.Signing,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)},
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func newGenerator(cfg config.GeneratorConfig, log zerolog.Logger) ports.ArtifactGenerator {
	if cfg.Provider == "static" {
		log.Warn().Msg("using static artifact generator")
		return artifact.NewStaticGenerator()
	}
	// No client timeout: every call is bounded by mint.generation_timeout.
	return artifact.NewGeminiGenerator(cfg, &http.Client{}, log)
}
