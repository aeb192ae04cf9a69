package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/fiapx/fiapx-video-extender/internal/infra/config"
	"github.com/fiapx/fiapx-video-extender/internal/infra/credential"
	"github.com/fiapx/fiapx-video-extender/internal/infra/httpapi"
	"github.com/fiapx/fiapx-video-extender/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-video-extender/internal/infra/minio"
	"github.com/fiapx/fiapx-video-extender/internal/infra/postgres"
	"github.com/fiapx/fiapx-video-extender/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-video-extender/internal/infra/tracing"
	"github.com/fiapx/fiapx-video-extender/internal/usecase"
	"github.com/fiapx/fiapx-video-extender/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-video-extender api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		Endpoint:    cfg.JaegerEndpoint,
		ServiceName: "fiapx-video-extender-api",
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		FrameBucket:  cfg.MinIOFrameBucket,
		ResultBucket: cfg.MinIOResultBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	fatalOnErr(pub.Declare(rabbitmq.Topology{
		Exchange:     cfg.RabbitMQExchange,
		RequestQueue: cfg.RabbitMQExtensionQueue,
		StatusQueue:  cfg.RabbitMQStatusQueue,
		DLQ:          cfg.RabbitMQDLQ,
	}), "declare rabbitmq topology")
	defer pub.Close()

	creds, selector, err := credentialSource(cfg, pool)
	fatalOnErr(err, "configure credential source")

	uc := usecase.NewRequestExtensionUseCase(
		postgres.NewJobRepository(pool),
		storage,
		rabbitmq.NewRequestPublisher(pub),
		creds,
		selector,
		log,
		usecase.RequestExtensionConfig{
			Defaults: entity.GenerationConfig{
				NumberOfVideos: cfg.VeoDefaultCount,
				Resolution:     cfg.VeoDefaultResolution,
				AspectRatio:    cfg.VeoDefaultAspectRatio,
			},
			MaxAttempts: cfg.MaxAttempts,
			ResultTTL:   cfg.ResultURLTTL,
		},
	)

	router := httpapi.NewRouter(uc, log, httpapi.Options{
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		HealthChecks: map[string]metrics.HealthCheck{
			"postgres": pool.Ping,
			"rabbitmq": func(context.Context) error {
				if rmqConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server starting", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	log.Info("fiapx-video-extender api stopped")
}

// credentialSource returns the key provider and, when keys can be changed at
// runtime, the selector the API writes new keys to.
func credentialSource(cfg *config.Config, pool *pgxpool.Pool) (port.CredentialProvider, port.CredentialSelector, error) {
	switch cfg.CredentialSource {
	case "postgres":
		store := postgres.NewCredentialStore(pool)
		return store, store, nil
	case "env":
		return credential.NewEnvProvider(cfg.CredentialEnvVar), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential source %q", cfg.CredentialSource)
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
