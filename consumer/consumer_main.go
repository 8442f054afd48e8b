package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tnqbao/gau-ml-service/config"
	"github.com/tnqbao/gau-ml-service/consumer/worker"
	infraPkg "github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/repository"
)

func main() {
	err := godotenv.Load("../staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	// Initialize context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelEventConsumer := worker.NewModelEventConsumer(
		infra.RabbitMQ.Channel,
		infra.Logger,
		repo.ModelEventRepo,
		infra.Produce.EmailService,
	)
	if err := modelEventConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Model Event consumer: %v", err)
		log.Fatalf("Failed to start Model Event consumer: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	infra.RabbitMQ.Close()
	_ = infra.Telemetry.Shutdown(shutdownCtx)
	_ = infra.Logger.Shutdown(shutdownCtx)

	log.Println("Consumer exited properly")
}
