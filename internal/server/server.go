package server

import (
	"context"
	"net/http"

	"proledger/internal/account"
	"proledger/internal/auth"
	"proledger/internal/claim"
	"proledger/internal/config"
	"proledger/internal/email"
	"proledger/internal/ledger"
	"proledger/internal/purchase"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router  *gin.Engine
	http    *http.Server
	db      *sqlx.DB
	config  *config.Config
	email   *email.Service
	limiter *RateLimiter
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service) *Server {
	router := gin.Default()
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(limiter.Middleware())

	accountRepo := account.NewRepository(db)
	accountService := account.NewService(accountRepo, cfg.JWTSecret)
	accountHandler := account.NewHandler(accountService)

	engine := ledger.NewEngine(ledger.NewStore(db))
	ledgerHandler := ledger.NewHandler(engine)

	purchaseService := purchase.NewService(purchase.NewRepository(db), engine, accountRepo, emailService)
	purchaseHandler := purchase.NewHandler(purchaseService)

	claimService := claim.NewService(claim.NewRepository(db), engine, accountRepo, emailService)
	claimHandler := claim.NewHandler(claimService)

	public := router.Group("/auth")
	{
		public.POST("/register", accountHandler.Register)
		public.POST("/login", accountHandler.Login)
		public.POST("/refresh", accountHandler.Refresh)
	}

	// Gateway callbacks arrive without a JWT; signature verification happens
	// at the ingress proxy before they reach this route.
	router.POST("/webhooks/payment", purchaseHandler.PaymentWebhook)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", accountHandler.GetMe)
		protected.GET("/credits/balance", ledgerHandler.GetBalance)
		protected.GET("/credits/history", ledgerHandler.GetHistory)
		protected.POST("/leads/:leadID/claim", claimHandler.ClaimLead)
		protected.GET("/claims", claimHandler.ListClaims)
		protected.GET("/packages", purchaseHandler.ListPackages)
		protected.POST("/purchases", purchaseHandler.CreatePurchase)
		protected.GET("/purchases", purchaseHandler.ListPurchases)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/credits/grant", ledgerHandler.Grant)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router, "localhost:"+cfg.Port)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: router,
		},
		db:      db,
		config:  cfg,
		email:   emailService,
		limiter: limiter,
	}
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.http.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
