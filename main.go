package main

import (
	"log"
	"os"

	"ledger-service/internal/database"
	"ledger-service/internal/handlers"
	"ledger-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	db, err := database.Open()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// Redis/Asynq Client
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer asynqClient.Close()

	// Identity Client
	identityClient, err := services.NewIdentityClient()
	if err != nil {
		logger.Fatal("failed to create identity client", zap.Error(err))
	}

	// Init Services
	walletService := services.NewWalletService(db, logger)
	idempotencyService := services.NewIdempotencyService(db, logger)
	auditService := services.NewAuditService(db, asynqClient, logger)
	transactionService := services.NewTransactionService(db, walletService, idempotencyService, auditService, asynqClient, logger)
	commissionService := services.NewCommissionService(db, identityClient, logger)

	// Handlers
	walletHandler := handlers.NewWalletHandler(walletService, idempotencyService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	commissionHandler := handlers.NewCommissionHandler(commissionService, asynqClient, logger)

	// Initialize Gin
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome To Ledger service",
		})
	})

	// Wallet Routes
	r.POST("/wallets", walletHandler.Create)
	r.GET("/wallets/balance", walletHandler.GetBalance)
	r.POST("/wallets/credit", walletHandler.Credit)
	r.POST("/wallets/debit", walletHandler.Debit)
	r.POST("/wallets/hold", walletHandler.Hold)
	r.POST("/wallets/release", walletHandler.Release)
	r.GET("/wallets/ledger", walletHandler.ListLedger)

	// Transaction Routes
	r.POST("/transactions", transactionHandler.Create)
	r.GET("/transactions", transactionHandler.List)
	r.POST("/transactions/:id/status", transactionHandler.UpdateStatus)
	r.POST("/transactions/:id/refund", transactionHandler.Refund)

	// Commission Routes
	r.POST("/commissions/settings", commissionHandler.SaveSetting)
	r.GET("/commissions/earnings", commissionHandler.ListEarnings)
	r.POST("/commissions/reverse/:id", commissionHandler.Reverse)

	// Start Cron Schedulers
	idempotencyService.StartScheduler()
	transactionService.StartScheduler()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("HTTP server starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
