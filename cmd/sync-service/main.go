package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/config"
	"github.com/Wuchinator/watchtime/internal/ingest"
	"github.com/Wuchinator/watchtime/internal/server"
	"github.com/Wuchinator/watchtime/internal/stats"
	"github.com/Wuchinator/watchtime/internal/user"
	"github.com/Wuchinator/watchtime/pkg/kafka"
	"github.com/Wuchinator/watchtime/pkg/logger"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

const serviceName = "sync-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Error initializing logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, serviceName)
	log.Info("Starting Sync Service",
		zap.String("environment", cfg.Environment),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Bool("require_auth", cfg.Auth.RequireAuth),
	)

	dsn := cfg.Postgres.PostgresDSN()
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(dsn, log); err != nil {
			log.Fatal("Error migrating schema", zap.Error(err))
		}
	}

	db, err := postgres.New(postgres.Config{
		DSN:             dsn,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("Error initializing postgres client", zap.Error(err))
	}
	defer db.Close()

	notifier := ingest.NoopNotifier()
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.Topic,
			Retries:          cfg.Kafka.ProducerRetries,
			Timeout:          cfg.Kafka.ProducerTimeout,
			RequiredAcks:     cfg.Kafka.RequiredAcks,
			Compression:      cfg.Kafka.CompressionType,
			IdempotentWrites: cfg.Kafka.IdempotentWrites,
			MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
		}, log)
		if err != nil {
			log.Fatal("Error initializing kafka", zap.Error(err))
		}
		defer producer.Close()
		notifier = ingest.NewKafkaNotifier(producer, log)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB.DB, "watchtime"),
	)

	users := user.NewRepository(db, log)
	statsRepo := stats.NewRepository(db)

	syncService := ingest.NewService(ingest.NewStore(db, log), log,
		ingest.WithNotifier(notifier),
		ingest.WithMetrics(ingest.NewMetrics(reg)),
		ingest.WithLimits(ingest.LimitsFromConfig(cfg.Limits)),
	)

	var verifier auth.Verifier
	if cfg.Auth.RequireAuth {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		google, err := auth.NewGoogleVerifier(ctx, cfg.Auth.GoogleClientID)
		cancel()
		if err != nil {
			log.Fatal("Error initializing token verifier", zap.Error(err))
		}
		verifier = auth.NewCachingVerifier(google, cfg.Auth.TokenCacheTTL, cfg.Auth.TokenCacheSize)
	} else {
		log.Warn("Authentication disabled, trusting X-User-Id header")
	}

	handler, err := server.New(server.Options{
		Logger:        log,
		Auth:          auth.NewMiddleware(cfg.Auth.RequireAuth, verifier, users, log),
		Ingest:        ingest.NewHandler(syncService, statsRepo, log),
		Stats:         stats.NewHandler(stats.NewService(statsRepo, nil), log),
		Database:      db,
		Gatherer:      reg,
		RequireAuth:   cfg.Auth.RequireAuth,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		RateLimit:     cfg.HTTP.RateLimit,
		RateLimitSync: cfg.HTTP.RateLimitSync,
	})
	if err != nil {
		log.Fatal("Error building HTTP server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Checker for kuber
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(log),
		recoveryInterceptor(log),
	))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("Error initializing gRPC listener", zap.Error(err))
	}

	go func() {
		log.Info("Starting gRPC health server", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(listener); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP shutdown timed out", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		log.Warn("shutdown gRPC server timed out")
		grpcServer.Stop()
	}
	log.Info("Sync Service stopped")
}
