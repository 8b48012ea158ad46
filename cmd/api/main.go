package main

import (
	"context"

	"github.com/clipforge/backend/internal/catalog"
	"github.com/clipforge/backend/internal/coinbase"
	"github.com/clipforge/backend/internal/handlers"
	"github.com/clipforge/backend/internal/ledger"
	"github.com/clipforge/backend/internal/stripe"
	"github.com/clipforge/backend/pkg/auth"
	"github.com/clipforge/backend/pkg/config"
	"github.com/clipforge/backend/pkg/database"
	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/monitoring"
	"github.com/clipforge/backend/pkg/server"
	"github.com/clipforge/backend/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("billing")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting billing API")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	stripeKey := config.RequireEnv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := config.RequireEnv("STRIPE_WEBHOOK_SECRET")
	coinbaseKey := config.GetEnv("COINBASE_API_KEY", "")
	coinbaseWebhookSecret := config.GetEnv("COINBASE_WEBHOOK_SECRET", "")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	dbConfig.MaxOpenConns = config.GetEnvInt("DB_MAX_OPEN_CONNS", dbConfig.MaxOpenConns)
	dbConfig.MaxIdleConns = config.GetEnvInt("DB_MAX_IDLE_CONNS", dbConfig.MaxIdleConns)
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.ApplySchema(context.Background(), db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	// Build the plan catalog; an incomplete price map is a deploy error
	planCatalog, err := catalog.New(catalog.PriceRefsFromEnv())
	if err != nil {
		logger.WithError(err).Fatal("Invalid plan catalog configuration")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("billing", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("billing", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":          dbURL,
		"JWT_SECRET":            jwtSecret,
		"STRIPE_SECRET_KEY":     stripeKey,
		"STRIPE_WEBHOOK_SECRET": stripeWebhookSecret,
	}))

	// Create custom billing metrics
	metrics := &handlers.BillingMetrics{
		CreditGrants:      metricsCollector.NewCounter("credit_grants_total", "Credit grants applied", []string{"source"}),
		CreditDeductions:  metricsCollector.NewCounter("credit_deductions_total", "Credit deductions applied", []string{"discounted"}),
		WebhookEvents:     metricsCollector.NewCounter("webhook_events_total", "Webhook deliveries processed", []string{"provider", "event_type", "outcome"}),
		SignatureFailures: metricsCollector.NewCounter("webhook_signature_failures_total", "Webhook signature verification failures", []string{"provider"}),
		CheckoutSessions:  metricsCollector.NewCounter("checkout_sessions_total", "Checkout sessions created", []string{"provider", "mode"}),
	}
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Payment provider clients
	stripeClient := stripe.NewClient(stripe.Config{
		SecretKey:     stripeKey,
		WebhookSecret: stripeWebhookSecret,
		Logger:        logger,
	})
	coinbaseClient := coinbase.NewClient(coinbase.Config{
		APIKey:        coinbaseKey,
		WebhookSecret: coinbaseWebhookSecret,
		Logger:        logger,
	})

	ledgerEngine := ledger.NewEngine(db, logger)

	// Initialize handlers
	handlers.Init(db, logger, metrics, ledgerEngine, planCatalog, stripeClient, coinbaseClient, []byte(jwtSecret))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "billing", healthChecker, metricsCollector)

	// API routes
	{
		// Public endpoints
		router.POST("/auth/register", handlers.HandleRegister)
		router.POST("/auth/login", handlers.HandleLogin)
		router.GET("/billing/plans", handlers.HandleGetPlans)
		router.GET("/billing/packs", handlers.HandleGetPacks)

		// Anonymous buyers may start a subscription checkout before they
		// have an account; the pending-subscription claim closes the loop.
		router.POST("/billing/checkout/subscription", handlers.HandleSubscriptionCheckout)

		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.GET("/billing/balance", handlers.HandleGetBalance)
			protected.GET("/billing/payments", handlers.HandleGetPayments)
			protected.GET("/billing/ledger", handlers.HandleGetLedger)
			protected.POST("/billing/checkout/credits", handlers.HandleCreditsCheckout)
			protected.POST("/billing/checkout/crypto", handlers.HandleCryptoCheckout)
			protected.POST("/billing/subscription/cancel", handlers.HandleCancelSubscription)
			protected.POST("/usage/consume", handlers.HandleConsume)
		}

		// Webhook endpoints (signature auth, not session auth)
		router.POST("/webhooks/stripe", handlers.HandleStripeWebhook)
		router.POST("/webhooks/coinbase", handlers.HandleCoinbaseWebhook)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("billing", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
