package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"stay-reservations/cmd"
	"stay-reservations/internal/data/repository"
	"stay-reservations/internal/gateway"
	"stay-reservations/internal/usecase"
	"stay-reservations/internal/wire"
	"stay-reservations/internal/worker"
	"stay-reservations/pkg/cache"
	"stay-reservations/pkg/database"
	"stay-reservations/pkg/messaging"
	"stay-reservations/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
		zap.String("gateway", config.Razorpay.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	repos := repository.NewRepository(db, logger)

	deps := usecase.Deps{
		Gateway: newGateway(config.Razorpay, logger),
		Dedup:   cache.NoopDedup{},
		Events:  messaging.NoopPublisher{},
	}

	if config.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, config.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		deps.Dedup = cache.NewRedisDedup(rdb)
		logger.Info("Redis webhook dedup enabled", zap.String("addr", config.Redis.Addr))
	}

	g, ctx := errgroup.WithContext(ctx)

	if len(config.Kafka.Brokers) > 0 {
		publisher := messaging.NewKafkaPublisher(config.Kafka, config.App.Name, logger)
		deps.Events = publisher
		g.Go(func() error { return publisher.Run(ctx) })
		logger.Info("Kafka publisher enabled",
			zap.Strings("brokers", config.Kafka.Brokers),
			zap.String("topic", config.Kafka.Topic))
	}

	app := wire.Wiring(repos, deps, config, logger)

	scheduler := worker.NewScheduler(logger, worker.MaintenanceJobs(app.Service.Maintenance, config.Reservation)...)
	g.Go(func() error { return scheduler.Run(ctx) })

	g.Go(func() error { return cmd.APIServer(ctx, app.Router, config.App.Port, logger) })

	if err := g.Wait(); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
		return
	}
	logger.Info("Application stopped")
}

func newGateway(cfg utils.RazorpayConfig, logger *zap.Logger) gateway.Gateway {
	if cfg.Mode == "mock" {
		logger.Warn("Using mock payment gateway")
		return gateway.NewMock(cfg.KeyID, cfg.KeySecret, cfg.WebhookSecret)
	}
	return gateway.NewRazorpay(cfg, logger)
}
