package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/teammatch/api"
	"github.com/Aidin1998/teammatch/common/auth"
	"github.com/Aidin1998/teammatch/internal/config"
	"github.com/Aidin1998/teammatch/internal/database"
	"github.com/Aidin1998/teammatch/internal/matching"
	"github.com/Aidin1998/teammatch/internal/matchqueue"
	"github.com/Aidin1998/teammatch/internal/messaging"
	"github.com/Aidin1998/teammatch/internal/notification"
	"github.com/Aidin1998/teammatch/internal/pairing"
	"github.com/Aidin1998/teammatch/internal/ws"
	"github.com/Aidin1998/teammatch/pkg/logger"
	"github.com/Aidin1998/teammatch/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	cfg, err := config.Load(zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Log.Level != "" && os.Getenv("LOG_LEVEL") == "" {
		if zapLogger, err = logger.NewLogger(cfg.Log.Level); err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Tracing:        cfg.Telemetry.Tracing,
		Metrics:        cfg.Telemetry.Metrics,
		MetricInterval: 30 * time.Second,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	go database.CollectPoolStats(ctx, db, cfg.Database.Driver, 30*time.Second)

	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	store, closeStore, err := openQueueStore(ctx, cfg, checks)
	if err != nil {
		zapLogger.Fatal("Failed to open queue store", zap.Error(err))
	}

	instanceID := uuid.New().String()
	kafkaCfg := messaging.DefaultKafkaConfig()
	kafkaCfg.Brokers = cfg.Kafka.Brokers
	kafkaCfg.ConsumerGroupPrefix = cfg.Kafka.GroupPrefix
	newBus := func() *messaging.MessageBus {
		return messaging.NewMessageBus(
			messaging.NewKafkaProducer(kafkaCfg, zapLogger),
			messaging.NewKafkaConsumer(kafkaCfg, zapLogger),
			instanceID,
			zapLogger,
		)
	}

	// Notification delivery
	var hub *ws.Hub
	if cfg.Notifications.HasTransport("websocket") {
		hub = ws.NewHub(cfg.Notifications.HubShards, cfg.Notifications.ReplaySize, cfg.Notifications.ReplayTTL, zapLogger)
	}
	var notifyBus *messaging.MessageBus
	notifier := notification.NewFanout(zapLogger)
	if cfg.Notifications.HasTransport("kafka") {
		notifyBus = newBus()
		checks["notification_bus"] = func(context.Context) error { return notifyBus.HealthCheck() }
		notifier.Add("kafka", notification.NewBusGateway(notifyBus))
		if hub != nil {
			// every instance relays to its own sockets
			if err := notification.StartRelay(notifyBus, hub, instanceID); err != nil {
				zapLogger.Fatal("Failed to start notification relay", zap.Error(err))
			}
		}
	} else if hub != nil {
		notifier.Add("websocket", notification.NewHubGateway(hub))
	}

	// Matching and pairing
	teams := matching.NewTeamDirectory(db)
	queue := matchqueue.NewQueue(store, nil, zapLogger)
	matchSvc, err := matching.NewService(zapLogger, db, teams, queue, notifier)
	if err != nil {
		zapLogger.Fatal("Failed to create matching service", zap.Error(err))
	}
	coordinator := pairing.NewCoordinator(queue, matchSvc, teams, notifier, cfg.Matchmaking.MaxPairsPerSignal, zapLogger)

	var dispatcher *pairing.LocalDispatcher
	var signalBus *messaging.MessageBus
	switch cfg.Matchmaking.SignalTransport {
	case "kafka":
		signalBus = newBus()
		checks["signal_bus"] = func(context.Context) error { return signalBus.HealthCheck() }
		signaler := messaging.NewBusSignaler(signalBus)
		queue.SetSignaler(signaler)
		coordinator.SetResignal(signaler)
		signalBus.RegisterHandler(messaging.MsgQueueChanged, messaging.QueueChangedHandler(coordinator.HandleQueueChanged))
		if err := signalBus.StartConsumers(cfg.Kafka.ConsumerGroup); err != nil {
			zapLogger.Fatal("Failed to start queue signal consumer", zap.Error(err))
		}
	default:
		dispatcher = pairing.NewLocalDispatcher(coordinator.HandleQueueChanged, cfg.Matchmaking.Workers, cfg.Matchmaking.SignalBuffer, zapLogger)
		queue.SetSignaler(dispatcher)
		coordinator.SetResignal(dispatcher)
		if err := dispatcher.Start(); err != nil {
			zapLogger.Fatal("Failed to start pairing dispatcher", zap.Error(err))
		}
	}

	if err := matchSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start matching service", zap.Error(err))
	}

	apiServer := api.NewServer(zapLogger, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           auth.AuthorizationConfig{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer},
		Checks:         checks,
	}, matchSvc, hub)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}

	if signalBus != nil {
		if err := signalBus.Stop(); err != nil {
			zapLogger.Error("Failed to stop queue signal bus", zap.Error(err))
		}
	}
	if dispatcher != nil {
		if err := dispatcher.Stop(); err != nil {
			zapLogger.Error("Failed to stop pairing dispatcher", zap.Error(err))
		}
	}
	if err := matchSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop matching service", zap.Error(err))
	}
	if notifyBus != nil {
		if err := notifyBus.Stop(); err != nil {
			zapLogger.Error("Failed to stop notification bus", zap.Error(err))
		}
	}
	if hub != nil {
		hub.Stop()
	}
	if err := closeStore(); err != nil {
		zapLogger.Error("Failed to close queue store", zap.Error(err))
	}
	cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush telemetry", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}

// openQueueStore opens the configured queue backend and registers its health probe
func openQueueStore(ctx context.Context, cfg *config.Config, checks map[string]api.HealthCheck) (matchqueue.RegionalQueueStore, func() error, error) {
	switch cfg.Queue.Backend {
	case "badger":
		store, err := matchqueue.NewBadgerStore(cfg.Queue.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return matchqueue.NewRedisStore(rdb, cfg.Queue.KeyPrefix), rdb.Close, nil
	}
}
