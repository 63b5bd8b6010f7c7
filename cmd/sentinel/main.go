package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/anomaly"
	"github.com/quantops/sentinel/internal/config"
	"github.com/quantops/sentinel/internal/events"
	"github.com/quantops/sentinel/internal/metrics"
	"github.com/quantops/sentinel/internal/notification"
	"github.com/quantops/sentinel/internal/notification/providers"
	"github.com/quantops/sentinel/internal/server"
	"github.com/quantops/sentinel/internal/snapshot"
	"github.com/quantops/sentinel/internal/storage"
	"github.com/quantops/sentinel/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.New(registry)

	// Storage
	var db *gorm.DB
	switch cfg.Database.Driver {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifeSecs)
	default:
		db, err = storage.NewSQLiteDB(cfg.Database.DSN)
	}
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	store, err := storage.NewStore(db)
	if err != nil {
		zapLogger.Fatal("Failed to initialize store", zap.Error(err))
	}

	// Event publishers: websocket stream always, Redis when enabled.
	hub := server.NewHub(zapLogger)
	defer hub.Close()
	publisher := alerting.EventPublisher(hub)
	if cfg.Redis.Enabled {
		redisClient, err := events.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		redisPub := events.NewRedisPublisher(redisClient, cfg.Redis.Channel, zapLogger)
		defer redisPub.Close()
		publisher = fanout{hub, redisPub}
	}

	// Notification delivery
	queue, err := notification.NewBadgerQueue(cfg.Queue.Path)
	if err != nil {
		zapLogger.Fatal("Failed to open notification queue", zap.Error(err))
	}
	dispatcher := notification.NewDispatcher(queue, providers.NewFactory(zapLogger), nil,
		zapLogger, notification.DispatcherOptions{
			DrainInterval: time.Duration(cfg.Evaluation.DrainIntervalSeconds) * time.Second,
			Metrics:       engineMetrics,
		})
	defer dispatcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	detector := anomaly.NewDetector(cfg.Anomaly, zapLogger)
	manager, err := alerting.NewManager(ctx, store, alerting.NewEvaluator(detector), dispatcher,
		zapLogger, alerting.ManagerOptions{
			EvaluationInterval: time.Duration(cfg.Evaluation.IntervalSeconds) * time.Second,
			EscalationInterval: time.Duration(cfg.Evaluation.EscalationSweepSecs) * time.Second,
			Events:             publisher,
			Metrics:            engineMetrics,
		})
	if err != nil {
		zapLogger.Fatal("Failed to initialize alert manager", zap.Error(err))
	}
	dispatcher.SetResultSink(manager)

	// Bootstrap alert definitions
	if cfg.DefinitionsPath != "" {
		defs, err := config.LoadDefinitions(cfg.DefinitionsPath)
		if err != nil {
			zapLogger.Fatal("Failed to load alert definitions", zap.Error(err))
		}
		for i := range defs {
			def := defs[i]
			if err := manager.CreateConfig(ctx, &def); err != nil {
				zapLogger.Error("Skipping invalid alert definition",
					zap.String("name", def.Name), zap.Error(err))
			}
		}
		zapLogger.Info("Alert definitions loaded", zap.Int("count", len(defs)))
	}

	// Snapshot source
	var source snapshot.Source
	switch cfg.Snapshot.Source {
	case "kafka":
		ksCfg := snapshot.DefaultKafkaSourceConfig()
		ksCfg.Brokers = cfg.Snapshot.Brokers
		ksCfg.Topic = cfg.Snapshot.Topic
		ksCfg.GroupID = cfg.Snapshot.GroupID
		ksCfg.StaleWindow = time.Duration(cfg.Snapshot.MaxAgeSecs) * time.Second
		ks := snapshot.NewKafkaSource(ksCfg, zapLogger)
		ks.Start(ctx)
		defer ks.Close()
		source = ks
	default:
		source = snapshot.FuncSource(func(ctx context.Context) (snapshot.Snapshot, error) {
			return snapshot.Snapshot{}, snapshot.ErrNoSnapshot
		})
		zapLogger.Warn("No snapshot source configured, evaluation loop will idle")
	}

	dispatcher.Run(ctx)
	manager.Start(ctx, source)

	apiServer := server.NewServer(zapLogger, manager, store, dispatcher, hub, registry)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router(cfg.Server.CORSOrigins),
	}

	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	manager.Stop()
	cancel()

	zapLogger.Info("Engine exited properly")
}

// fanout publishes each event to every publisher in order.
type fanout []alerting.EventPublisher

func (f fanout) Publish(ctx context.Context, event alerting.Event) {
	for _, p := range f {
		p.Publish(ctx, event)
	}
}
