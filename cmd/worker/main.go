package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/config"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/email"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/ffmpeg"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/metrics"
	miniostorage "github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/minio"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/postgres"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/rabbitmq"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/tracing"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/usecase"
	"github.com/aadithva/flowsense-gpt4o-sub000/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const serviceName = "keyframe-extraction-worker"

func main() {
	cfg, err := config.Load(".env")
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting " + serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, serviceName)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(ctx, pool, log), "run migrations")

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		FrameBucket:  cfg.MinIOFrameBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Extraction core
	extractor := usecase.NewKeyframeExtractor(
		ffmpeg.NewProber(cfg.Prober(), log),
		ffmpeg.NewSampler(cfg.FFmpegPath, log),
		log,
		cfg.Extraction(),
	)

	// Infra adapters
	repo := postgres.NewRunRepository(pool)
	archiver := ffmpeg.NewZipArchiver()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewProcessRecordingUseCase(
		repo, storage, extractor, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessRecordingConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	metricsSrv := metrics.StartServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Exchange:    cfg.RabbitMQExchange,
		Queue:       cfg.RabbitMQProcessingQueue,
		StatusQueue: cfg.RabbitMQStatusQueue,
		DLQ:         cfg.RabbitMQDLQ,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info(serviceName+" started, consuming recordings",
		zap.String("queue", cfg.RabbitMQProcessingQueue),
		zap.Float64("coarse_fps", cfg.CoarseFPS),
		zap.Float64("fine_fps", cfg.FineFPS),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(serviceName + " stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
