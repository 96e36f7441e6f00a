package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gbr-server/internal/artifact"
	"gbr-server/internal/storage"

	"github.com/caarlos0/env/v11"
)

const DefaultArtifactName = "gbr_pipeline.json"

type Config struct {
	ModelURL          string        `env:"MODEL_URL"`
	ModelPath         string        `env:"MODEL_PATH"`
	ModelFetchTimeout time.Duration `env:"MODEL_FETCH_TIMEOUT" envDefault:"2m"`
	ModelTempDir      string        `env:"MODEL_TEMP_DIR"`
	PreloadModel      bool          `env:"PRELOAD_MODEL" envDefault:"true"`

	Port               string        `env:"PORT" envDefault:"8000"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES" envDefault:"10485760"`
	CorsAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	LedgerDSN string `env:"LEDGER_DSN"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.ModelPath == "" {
		cfg.ModelPath = defaultModelPath()
	}

	if cfg.S3EndpointURL != "" && (cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}

	return &cfg, nil
}

// defaultModelPath is the artifact file next to the running executable.
func defaultModelPath() string {
	exe, err := os.Executable()
	if err != nil {
		slog.Warn("unable to locate executable, using working directory for model path", "error", err)
		return DefaultArtifactName
	}
	return filepath.Join(filepath.Dir(exe), DefaultArtifactName)
}

func (c *Config) SourceConfig() artifact.SourceConfig {
	return artifact.SourceConfig{
		URL:          strings.TrimSpace(c.ModelURL),
		LocalPath:    c.ModelPath,
		FetchTimeout: c.ModelFetchTimeout,
		S3: storage.S3ClientConfig{
			Endpoint:        c.S3EndpointURL,
			Region:          c.S3Region,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
		},
	}
}
