package server

import (
	"context"
	"net/http"
	"time"

	"github.com/nezaj/instant-stripe-credits/internal/auth"
	"github.com/nezaj/instant-stripe-credits/internal/billing"
	"github.com/nezaj/instant-stripe-credits/internal/config"
	"github.com/nezaj/instant-stripe-credits/internal/email"
	"github.com/nezaj/instant-stripe-credits/internal/generation"
	"github.com/nezaj/instant-stripe-credits/internal/ledger"
	"github.com/nezaj/instant-stripe-credits/internal/payment"
	"github.com/nezaj/instant-stripe-credits/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service, processor payment.Processor) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	userRepo := user.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	userHandler := user.NewHandler(db, cfg.JWTSecret)

	billingService := billing.NewService(processor, userRepo, ledgerRepo, emailService, cfg)
	billingHandler := billing.NewHandler(billingService, cfg.StripeWebhookSecret)

	generationService := generation.NewService(
		generation.NewRepository(db, ledgerRepo),
		ledgerRepo,
		generation.EchoProducer,
	)
	generationHandler := generation.NewHandler(generationService)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	// The processor authenticates with its signature, not a bearer token.
	router.POST("/webhooks/payment", billingHandler.Webhook)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.POST("/billing/checkout", billingHandler.CreateCheckout)
		protected.POST("/billing/sync", billingHandler.Sync)
		protected.GET("/billing/balance", billingHandler.GetBalance)
		protected.GET("/billing/history", billingHandler.ListHistory)

		protected.POST("/generations", generationHandler.Create)
		protected.GET("/generations", generationHandler.List)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
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
