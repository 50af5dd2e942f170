package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"elis"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"elis"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI    bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool   `envconfig:"ENABLE_WORKER" default:"true"`
	EnableReaper bool   `envconfig:"ENABLE_REAPER" default:"true"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	WorkspaceDir    string `envconfig:"ELIS_WORKSPACE_DIR" default:"./workspace"`

	// Job execution
	JobMaxRetries         int `envconfig:"JOB_MAX_RETRIES" default:"3"`
	JobRetryBaseSeconds   int `envconfig:"JOB_RETRY_BASE_SECONDS" default:"60"`
	JobSoftTimeoutSeconds int `envconfig:"JOB_SOFT_TIMEOUT_SECONDS" default:"1500"`
	JobHardTimeoutSeconds int `envconfig:"JOB_HARD_TIMEOUT_SECONDS" default:"1800"`
	JobLeaseSeconds       int `envconfig:"JOB_LEASE_SECONDS" default:"2100"`
	ReaperIntervalSeconds int `envconfig:"REAPER_INTERVAL_SECONDS" default:"60"`
	ReaperBatchSize       int `envconfig:"REAPER_BATCH_SIZE" default:"100"`

	// External tools
	DockerBinary        string `envconfig:"DOCKER_BINARY" default:"docker"`
	ExtractorImage      string `envconfig:"EXTRACTOR_IMAGE" default:"pdf-extractor:latest"`
	TamperDetectorImage string `envconfig:"TAMPER_DETECTOR_IMAGE" default:"trufor-detector:latest"`
	WatermarkImage      string `envconfig:"WATERMARK_IMAGE" default:"pdf-watermark-removal:latest"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("%w: ELIS_WORKSPACE_DIR", ErrMissingRequired)
	}
	if c.JobSoftTimeoutSeconds >= c.JobHardTimeoutSeconds {
		return fmt.Errorf("JOB_SOFT_TIMEOUT_SECONDS (%d) must be below JOB_HARD_TIMEOUT_SECONDS (%d)",
			c.JobSoftTimeoutSeconds, c.JobHardTimeoutSeconds)
	}
	if c.JobLeaseSeconds <= c.JobHardTimeoutSeconds {
		return fmt.Errorf("JOB_LEASE_SECONDS (%d) must exceed JOB_HARD_TIMEOUT_SECONDS (%d)",
			c.JobLeaseSeconds, c.JobHardTimeoutSeconds)
	}
	return nil
}
