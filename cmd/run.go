package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"betengine/api"
	"betengine/application"
	"betengine/broadcast"
	"betengine/config"
	"betengine/database"
	"betengine/events"
	"betengine/observability"
	"betengine/repository"
	"betengine/service"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting betengine...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize metrics
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics.SubscribeToBus(eventBus)

	// Initialize NATS broadcast channel
	var mirror service.BroadcastMirror = broadcast.NoopMirror{}
	var relay *broadcast.WSRelay
	var natsClient *broadcast.NATSClient

	if cfg.NATSEnabled {
		log.Info("Connecting to NATS...")
		natsClient = broadcast.NewNATSClient(cfg.NATSServers)
		if err := natsClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}

		if err := natsClient.EnsureStream(cfg.EventStream, broadcast.Subjects()); err != nil {
			return fmt.Errorf("failed to ensure event stream: %w", err)
		}
		broadcast.NewEventForwarder(natsClient).Register(eventBus)

		kv, err := natsClient.KeyValue(cfg.BroadcastBucket)
		if err != nil {
			return fmt.Errorf("failed to open broadcast bucket: %w", err)
		}
		mirror = broadcast.NewKVMirror(kv)
		relay = broadcast.NewWSRelay(broadcast.NewKVStateSource(kv))
		log.Info("NATS broadcast channel ready")
	} else {
		log.Info("NATS disabled; live round state will not be broadcast")
	}

	// Initialize services
	log.Info("Initializing services...")
	userService := service.NewUserService(uowFactory, cfg)
	betService := service.NewBetService(uowFactory, cfg)
	duelService := service.NewDuelService(uowFactory, cfg)
	paymentService := service.NewPaymentService(uowFactory, cfg)
	generator := service.NewRoundGenerator(uowFactory, cfg)
	settlementService := service.NewSettlementService(uowFactory, generator, mirror, metrics, cfg)
	log.Info("Services initialized successfully")

	// Start HTTP server
	router := api.NewRouter(cfg, api.Services{
		Users:      userService,
		Bets:       betService,
		Settlement: settlementService,
		Duels:      duelService,
		Payments:   paymentService,
	}, relay)
	server := api.NewServer(cfg, router)

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start in-process scheduler
	stopWorker := func() {}
	if cfg.SchedulerEnabled {
		worker := application.NewSettlementWorker(settlementService, duelService, paymentService, cfg.SchedulerInterval)
		stopWorker = worker.Start(ctx)
	}

	log.Infof("betengine is running in %s mode...", cfg.Environment)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	}

	// Cleanup resources
	log.Info("Shutting down betengine...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics provider")
	}

	log.Info("Shutdown completed")
	return nil
}
