package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/fiapx/fiapx-video-extender/internal/generation"
	"github.com/fiapx/fiapx-video-extender/internal/infra/config"
	"github.com/fiapx/fiapx-video-extender/internal/infra/credential"
	"github.com/fiapx/fiapx-video-extender/internal/infra/email"
	"github.com/fiapx/fiapx-video-extender/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-video-extender/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-video-extender/internal/infra/minio"
	"github.com/fiapx/fiapx-video-extender/internal/infra/postgres"
	"github.com/fiapx/fiapx-video-extender/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-video-extender/internal/infra/tracing"
	"github.com/fiapx/fiapx-video-extender/internal/infra/veo"
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

	log.Info("starting fiapx-video-extender worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		Endpoint:    cfg.JaegerEndpoint,
		ServiceName: "fiapx-video-extender-worker",
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

	topology := rabbitmq.Topology{
		Exchange:     cfg.RabbitMQExchange,
		RequestQueue: cfg.RabbitMQExtensionQueue,
		StatusQueue:  cfg.RabbitMQStatusQueue,
		DLQ:          cfg.RabbitMQDLQ,
	}

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	fatalOnErr(pub.Declare(topology), "declare rabbitmq topology")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	creds, err := credentialSource(cfg, pool)
	fatalOnErr(err, "configure credential source")

	generator := generation.NewClient(
		veo.NewClient(veo.Config{Model: cfg.VeoModel, BaseURL: cfg.VeoBaseURL}),
		creds,
		log,
		generation.Options{PollInterval: cfg.VeoPollInterval, MaxWait: cfg.VeoMaxWait},
	)

	repo := postgres.NewJobRepository(pool)
	extractor := ffmpeg.NewExtractor(cfg.FFmpegFrameFormat, cfg.FFmpegEOFEpsilon, cfg.TempDir, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewExtendVideoUseCase(
		repo, storage, extractor, generator, creds,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtendVideoConfig{
			TempDir:     cfg.TempDir,
			MaxAttempts: cfg.MaxAttempts,
		},
	)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, map[string]metrics.HealthCheck{
		"postgres": pool.Ping,
		"rabbitmq": connectionCheck(rmqConn),
	}, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Topology:    topology,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("fiapx-video-extender worker started, consuming messages",
		zap.String("queue", topology.RequestQueue),
		zap.Int("workers", cfg.WorkerCount),
		zap.String("credential_source", cfg.CredentialSource),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("fiapx-video-extender worker stopped")
}

// credentialSource returns where the generation client reads its API key.
func credentialSource(cfg *config.Config, pool *pgxpool.Pool) (port.CredentialProvider, error) {
	switch cfg.CredentialSource {
	case "postgres":
		return postgres.NewCredentialStore(pool), nil
	case "env":
		return credential.NewEnvProvider(cfg.CredentialEnvVar), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.CredentialSource)
	}
}

func connectionCheck(conn *amqp.Connection) metrics.HealthCheck {
	return func(context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
