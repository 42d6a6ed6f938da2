package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"auction-lifecycle-service/internal/adapters/broadcaster"
	"auction-lifecycle-service/internal/adapters/broker"
	"auction-lifecycle-service/internal/adapters/db"
	"auction-lifecycle-service/internal/adapters/redis"
	"auction-lifecycle-service/internal/adapters/scheduler"
	"auction-lifecycle-service/internal/adapters/ws"
	"auction-lifecycle-service/internal/app"
	"auction-lifecycle-service/internal/config"
	"auction-lifecycle-service/internal/metrics"
	"auction-lifecycle-service/internal/pkg/clock"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Auction Lifecycle Service...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database
	dbConn, err := db.NewConnection(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	if cfg.Database.AutoMigrate {
		if err := dbConn.ApplySchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database schema")
		}
	}
	repos := db.NewRepositoryFactory(dbConn).GetAllRepositories()
	log.Info().Msg("Database repositories initialized")

	// Redis relay for live websocket events
	redisClient := redis.NewClient(cfg.Redis)
	if err := redis.Ping(ctx, redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	defer redisBroadcaster.Close()
	log.Info().Msg("Redis broadcaster initialized")

	// Broker
	brokerConn, err := broker.Dial(ctx, broker.ConnectionParams{
		URL:            cfg.Broker.URL,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		Logger:         log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to message broker")
	}
	defer brokerConn.Close()

	if err := brokerConn.WithChannel(func(ch *amqp.Channel) error {
		return broker.DeclareTopology(ch)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare broker topology")
	}
	log.Info().Msg("Broker topology declared")

	m := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.NewRealClock()

	publisher := broker.NewPublisher(broker.PublisherParams{
		Connection: brokerConn,
		Retries:    cfg.Broker.PublishRetries,
		Metrics:    m,
		Logger:     log.Logger,
	})

	// Business services
	notifier := app.NewNotifier(app.NotifierParams{
		Publisher:   publisher,
		Broadcaster: redisBroadcaster,
		Clock:       clk,
		Logger:      log.Logger,
	})
	schedulerService := app.NewSchedulerService(app.SchedulerServiceParams{
		Publisher:    publisher,
		Clock:        clk,
		MinimumDelay: cfg.Lifecycle.MinimumDelay,
		Metrics:      m,
		Logger:       log.Logger,
	})
	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		AuctionRepo:   repos.AuctionRepository,
		WatchlistRepo: repos.WatchlistRepository,
		Scheduler:     schedulerService,
		Notifier:      notifier,
		Clock:         clk,
		Logger:        log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		BidRepo:       repos.BidRepository,
		WatchlistRepo: repos.WatchlistRepository,
		Notifier:      notifier,
		Clock:         clk,
		Metrics:       m,
		Logger:        log.Logger,
	})
	lifecycleService := app.NewLifecycleService(app.LifecycleServiceParams{
		AuctionRepo:   repos.AuctionRepository,
		WatchlistRepo: repos.WatchlistRepository,
		Scheduler:     schedulerService,
		Notifier:      notifier,
		Clock:         clk,
		Metrics:       m,
		Logger:        log.Logger,
	})
	reportService := app.NewReportService(app.ReportServiceParams{
		AuctionRepo: repos.AuctionRepository,
		BidRepo:     repos.BidRepository,
		Notifier:    notifier,
		Clock:       clk,
		Window:      cfg.Report.Window,
		Logger:      log.Logger,
	})
	log.Info().Msg("Business services initialized")

	// Lifecycle consumers
	consumers := []broker.Runner{
		newLifecycleConsumer(cfg, brokerConn, broker.StartQueue, lifecycleService.HandleStart),
		newLifecycleConsumer(cfg, brokerConn, broker.EndQueue, lifecycleService.HandleEnd),
		newLifecycleConsumer(cfg, brokerConn, broker.TimeRemainingQueue, lifecycleService.HandleTimeRemaining),
	}
	consumersDone := make(chan error, 1)
	go func() {
		consumersDone <- broker.RunAll(ctx, consumers...)
	}()
	log.Info().Int("consumers", len(consumers)).Msg("Lifecycle consumers started")

	// Closed auction report
	reportScheduler := scheduler.NewReportScheduler(scheduler.ReportSchedulerParams{
		Schedule: cfg.Report.Schedule,
		Reports:  reportService,
		Logger:   log.Logger,
	})
	if err := reportScheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start report scheduler")
	}

	// HTTP and websocket surface
	server := ws.NewServer(ws.ServerParams{
		Config:         cfg,
		AuctionService: auctionService,
		BidService:     bidService,
		Broadcaster:    redisBroadcaster,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         log.Logger,
	})
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-consumersDone:
		log.Error().Err(err).Msg("Lifecycle consumers stopped")
	case err := <-serverDone:
		log.Error().Err(err).Msg("HTTP server stopped")
	}
	cancel()

	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	}

	reportScheduler.Stop()

	select {
	case <-consumersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Timed out waiting for lifecycle consumers")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func newLifecycleConsumer(cfg *config.Config, conn *broker.Connection, queue broker.Queue, handler broker.HandlerFunc) *broker.Consumer {
	return broker.NewConsumer(broker.ConsumerParams{
		Connection:   conn,
		Exchange:     broker.DelayedExchange,
		Queue:        queue,
		Prefetch:     cfg.Broker.Prefetch,
		RequeueDelay: cfg.Lifecycle.RequeueDelay,
		Handler:      handler,
		Logger:       log.Logger,
	})
}

func initLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
