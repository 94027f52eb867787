package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AWSRegion          string `env:"AWS_REGION"            envDefault:"us-east-1"`
	AWSEndpointURL     string `env:"AWS_ENDPOINT_URL"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	QueueURL        string        `env:"SQS_QUEUE_URL"`
	WaitTimeSeconds int32         `env:"WAIT_TIME_SECONDS" envDefault:"20"`
	BackoffInterval time.Duration `env:"BACKOFF_INTERVAL"  envDefault:"5s"`

	DynamoDBTable string `env:"DYNAMODB_TABLE_NAME"`
	TempDir       string `env:"TEMP_DIR"`

	FrameCount  int    `env:"FRAME_COUNT"  envDefault:"8"`
	FrameWidth  int    `env:"FRAME_WIDTH"  envDefault:"224"`
	FrameHeight int    `env:"FRAME_HEIGHT" envDefault:"224"`
	FFmpegPath  string `env:"FFMPEG_PATH"  envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`

	InferenceURL     string        `env:"INFERENCE_URL"     envDefault:"http://localhost:11434"`
	ModelName        string        `env:"MODEL_NAME"        envDefault:"LanguageBind/Video-LLaVA-7B-hf"`
	MaxNewTokens     int           `env:"MAX_NEW_TOKENS"    envDefault:"5000"`
	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"10m"`

	RedisURL        string        `env:"REDIS_URL"`
	CompletedTTL    time.Duration `env:"COMPLETED_TTL"    envDefault:"24h"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	BatchSize       int           `env:"DB_BATCH_SIZE"    envDefault:"25"`
	OpenSearchURL   string        `env:"OPENSEARCH_URL"`
	OpenSearchIndex string        `env:"OPENSEARCH_INDEX" envDefault:"video_analyses"`

	MetricsPort  int    `env:"METRICS_PORT"                envDefault:"9090"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL"                   envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required")
	}
	if cfg.DynamoDBTable == "" {
		return nil, fmt.Errorf("DYNAMODB_TABLE_NAME is required")
	}
	if cfg.FrameCount <= 0 {
		return nil, fmt.Errorf("FRAME_COUNT must be positive, got %d", cfg.FrameCount)
	}
	if cfg.FrameWidth <= 0 || cfg.FrameHeight <= 0 {
		return nil, fmt.Errorf("FRAME_WIDTH and FRAME_HEIGHT must be positive")
	}
	if cfg.WaitTimeSeconds < 0 || cfg.WaitTimeSeconds > 20 {
		return nil, fmt.Errorf("WAIT_TIME_SECONDS must be between 0 and 20, got %d", cfg.WaitTimeSeconds)
	}
	if cfg.InferenceTimeout <= 0 {
		return nil, fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", cfg.InferenceTimeout)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return cfg, nil
}
