package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careerhub/ai-pipeline/internal/blobstore"
	"github.com/careerhub/ai-pipeline/internal/config"
	"github.com/careerhub/ai-pipeline/internal/dispatcher"
	dispstorage "github.com/careerhub/ai-pipeline/internal/dispatcher/storage"
	"github.com/careerhub/ai-pipeline/internal/embedding"
	"github.com/careerhub/ai-pipeline/internal/metrics"
	"github.com/careerhub/ai-pipeline/internal/recommend"
	"github.com/careerhub/ai-pipeline/internal/vectorstore"
	"github.com/careerhub/ai-pipeline/shared/logger"
	"github.com/careerhub/ai-pipeline/shared/postgresql"
	"github.com/careerhub/ai-pipeline/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	workerID := workerIdentity()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, vectorstore.Config{
		Host:       cfg.VectorStore.Host,
		Port:       strconv.Itoa(cfg.VectorStore.Port),
		Collection: cfg.VectorStore.Collection,
		VectorSize: int(cfg.VectorStore.VectorSize),
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	appLogger.Info("Vector store connection established",
		slog.String("collection", cfg.VectorStore.Collection),
	)

	// Initialize embedding client
	embedder := embedding.NewOllamaClient(embedding.Config{
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		Timeout:  cfg.Embedding.Timeout,
	}, appLogger.Logger)

	// Initialize object storage client
	blobClient, err := blobstore.NewClient(blobstore.Config{
		Endpoint:  cfg.ObjectStorage.Endpoint,
		AccessKey: cfg.ObjectStorage.AccessKey,
		SecretKey: cfg.ObjectStorage.SecretKey,
		UseSSL:    cfg.ObjectStorage.UseSSL,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// Build the recommendation pipeline
	retriever := recommend.NewRetriever(vectorStore, cfg.VectorStore.ScoresAreDistances, appLogger.Logger)
	synthesizer := recommend.NewSynthesizer(initCompleter(&cfg.AI, appLogger.Logger), appLogger.Logger)

	// Wire handlers and the dispatcher
	taskStorage := dispstorage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	recorder := metrics.NewRecorder("worker")

	registry := dispatcher.NewRegistry()
	handlers := dispatcher.NewHandlers(embedder, vectorStore, blobClient, retriever, synthesizer, rabbitClient, appLogger.Logger)
	handlers.RegisterAll(registry)

	disp := dispatcher.NewDispatcher(dispatcher.Config{
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		TaskTimeout:   cfg.Worker.TaskTimeout,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	}, registry, taskStorage, rabbitClient, recorder, appLogger.Logger)

	// Expose Prometheus metrics when enabled
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics.Port, recorder, appLogger.Logger)
	}

	// Start dispatcher in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := disp.Run(ctx, rabbitClient); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Int("max_attempts", cfg.Worker.MaxAttempts),
		slog.Duration("task_timeout", cfg.Worker.TaskTimeout),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Dispatcher error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop consuming
	cancel()

	// Give in-flight tasks time to drain
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		disp.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Dispatcher stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Dispatcher shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if metricsSrv != nil {
			metricsSrv.Close()
		}
		if vectorStore != nil {
			vectorStore.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// workerIdentity builds a worker ID unique across hosts and restarts
func workerIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}

// initCompleter picks the generative backend. Test mode uses a deterministic
// in-process mock so the pipeline runs without external API credentials.
func initCompleter(cfg *config.AIConfig, logger *slog.Logger) recommend.Completer {
	if cfg.TestMode {
		logger.Info("AI test mode enabled, using mock completer")
		return recommend.NewMockCompleter()
	}

	return recommend.NewOpenAIClient(recommend.OpenAIConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger)
}

// startMetricsServer serves the worker's Prometheus registry on its own port
func startMetricsServer(port int, recorder *metrics.Recorder, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Metrics server listening",
			slog.String("address", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	return srv
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		WorkQueue: rabbitmq.QueueConfig{
			Name:       cfg.WorkQueue.Name,
			Durable:    cfg.WorkQueue.Durable,
			AutoDelete: cfg.WorkQueue.AutoDelete,
			Exclusive:  cfg.WorkQueue.Exclusive,
			RoutingKey: cfg.WorkQueue.RoutingKey,
		},
		ResultQueue: rabbitmq.QueueConfig{
			Name:       cfg.ResultQueue.Name,
			Durable:    cfg.ResultQueue.Durable,
			AutoDelete: cfg.ResultQueue.AutoDelete,
			Exclusive:  cfg.ResultQueue.Exclusive,
			RoutingKey: cfg.ResultQueue.RoutingKey,
		},
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
