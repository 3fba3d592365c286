package handler

import (
	"credit-mint-engine/config"
	"credit-mint-engine/internal/adapter/http/middleware"
	redisStore "credit-mint-engine/internal/adapter/storage/redis"
	"credit-mint-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	MintSvc        ports.MintService
	AssetSvc       ports.AssetService
	WalletSvc      ports.WalletService
	ReceiptSvc     ports.ReceiptService
	SupplySvc      ports.SupplyService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore // nil = database-only nonce check
	NonceRepo      ports.NonceRepository
	TokenSvc       ports.TokenService // nil = owner auth disabled
	SigningCfg     config.SigningConfig
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	assetHandler := NewAssetHandler(deps.AssetSvc)
	r.GET("/api/assets/:tokenId", rl("assets"), assetHandler.Serve)

	v1 := r.Group("/api/v1")

	// Owner routes. Bearer tokens are checked only when a token service is configured.
	ownerAuth := middleware.OwnerAuth(deps.TokenSvc)
	mintHandler := NewMintHandler(deps.MintSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)
	receiptHandler := NewReceiptHandler(deps.ReceiptSvc)

	v1.POST("/mint", ownerAuth, rl("mint"), mintHandler.Mint)
	v1.POST("/mint/preview", ownerAuth, rl("preview"), mintHandler.Preview)
	v1.GET("/receipts", ownerAuth, rl("dashboard"), receiptHandler.List)

	// Signed service-to-service routes.
	signed := middleware.SignedRequestAuth(deps.SigningCfg, deps.SigSvc, deps.NonceStore, deps.NonceRepo, deps.Logger)
	supplyHandler := NewSupplyHandler(deps.SupplySvc)

	wallets := v1.Group("/wallets")
	{
		wallets.POST("/deposit", rl("deposit"), signed, walletHandler.Deposit)
		wallets.POST("/transfer", rl("transfer"), signed, walletHandler.Transfer)
		wallets.GET("/:ownerId", ownerAuth, rl("dashboard"), walletHandler.GetWallet)
		wallets.GET("/:ownerId/ledger", ownerAuth, rl("dashboard"), walletHandler.ListLedger)
	}

	v1.POST("/supply/mint", rl("supply_mint"), signed, supplyHandler.Mint)

	return r
}
