package main

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ledger-service/internal/consumers"
	"ledger-service/internal/database"
	"ledger-service/internal/services"
	"ledger-service/internal/worker"
)

func main() {
	// Load env
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found in ../../.env, trying .env")
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using system env")
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect DB
	db, err := database.Open()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Identity Client
	identityClient, err := services.NewIdentityClient()
	if err != nil {
		logger.Fatal("failed to create identity client", zap.Error(err))
	}

	// Init Services. The worker needs no queue client of its own; audit
	// events raised here are delivered inline.
	walletService := services.NewWalletService(db, logger)
	auditService := services.NewAuditService(db, nil, logger)
	commissionService := services.NewCommissionService(db, identityClient, logger)
	distributionService := services.NewDistributionService(db, walletService, commissionService, auditService, logger)

	// Processor
	processor := consumers.NewCommissionProcessor(distributionService, auditService, logger)

	// Redis
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	logger.Info("starting worker")
	worker.StartWorker(redisOpt, processor)
}
