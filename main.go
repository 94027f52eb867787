package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	config_aws "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"analysis-worker/config"
	"analysis-worker/logger"
	"analysis-worker/metrics"
	"analysis-worker/repositories"
	"analysis-worker/services"
	"analysis-worker/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			zlog.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		zlog.Fatal("unable to load SDK config", zap.Error(err))
	}

	sqsClient := repositories.NewSQSClient(sqs.NewFromConfig(awsCfg), cfg.QueueURL, cfg.WaitTimeSeconds)
	s3Repo := repositories.NewS3Repository(repositories.NewS3Client(awsCfg), cfg.TempDir)
	dynamoClient := repositories.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)

	decoder := repositories.NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFprobePath)
	sampler := services.NewFrameSampler(decoder, cfg.FrameWidth, cfg.FrameHeight, zlog)

	inference := repositories.NewInferenceClient(cfg.InferenceURL, cfg.ModelName, cfg.MaxNewTokens, cfg.InferenceTimeout)
	if err := inference.HealthCheck(ctx); err != nil {
		zlog.Warn("inference engine not ready", zap.String("url", cfg.InferenceURL), zap.Error(err))
	}

	opts := []services.AnalysisOption{
		services.WithQueue(sqsClient),
		services.WithContentFetcher(s3Repo),
		services.WithSampler(sampler),
		services.WithInferenceGateway(inference),
		services.WithResultSink(dynamoClient),
		services.WithFrameCount(cfg.FrameCount),
		services.WithLogger(zlog),
	}

	// Optional collaborators
	if cfg.RedisURL != "" {
		redisClient, err := repositories.NewRedisClient(cfg.RedisURL, cfg.CompletedTTL)
		if err != nil {
			zlog.Fatal("failed to create redis client", zap.Error(err))
		}
		opts = append(opts, services.WithCompletionGuard(redisClient))
	}
	if cfg.DatabaseURL != "" {
		db, err := repositories.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			zlog.Fatal("failed to open run ledger", zap.Error(err))
		}
		opts = append(opts, services.WithRunLedger(repositories.NewDBRepository(db, cfg.BatchSize)))
	}
	if cfg.OpenSearchURL != "" {
		osClient, err := repositories.NewOpenSearchClient(cfg.OpenSearchURL)
		if err != nil {
			zlog.Fatal("error creating OpenSearch client", zap.Error(err))
		}
		opts = append(opts, services.WithResultIndexer(repositories.NewOpenSearchRepository(osClient, cfg.OpenSearchIndex)))
	}

	analysisService := services.NewAnalysisService(opts...)
	worker := services.NewWorkerService(sqsClient, analysisService, cfg.BackoffInterval, zlog)

	metricsServer := metrics.StartServer(cfg.MetricsPort, zlog)
	defer metricsServer.Close()

	// Graceful Shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		zlog.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()

	zlog.Info("video analysis worker started",
		zap.String("queue_url", cfg.QueueURL),
		zap.String("table", cfg.DynamoDBTable),
		zap.Int("frame_count", cfg.FrameCount),
		zap.String("model", cfg.ModelName),
	)
	worker.Start(ctx)
	zlog.Info("shutdown complete")
}

// loadAWSConfig builds the SDK config, pointing every client at
// AWS_ENDPOINT_URL with static credentials when one is set (localstack).
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*config_aws.LoadOptions) error{
		config_aws.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSEndpointURL != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           cfg.AWSEndpointURL,
				SigningRegion: cfg.AWSRegion,
			}, nil
		})
		opts = append(opts, config_aws.WithEndpointResolverWithOptions(customResolver))
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config_aws.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	return config_aws.LoadDefaultConfig(ctx, opts...)
}
