package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Upload strategies.
const (
	StrategyStream    = "stream"
	StrategyBlob      = "blob"
	StrategyPresigned = "presigned"
	StrategyBackend   = "backend"
	StrategyS3        = "s3"
)

// Metadata modes understood by the downloader.
const (
	MetadataModeJSON  = "json"
	MetadataModePrint = "print"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	YtDlp   YtDlpConfig   `yaml:"ytdlp"`
	Cookies CookiesConfig `yaml:"cookies"`
	PoToken PoTokenConfig `yaml:"potoken"`
	Upload  UploadConfig  `yaml:"upload"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8000"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"30m"`
	CORSOrigins  []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS" default:"*"`
}

// StorageConfig holds local scratch storage configuration.
type StorageConfig struct {
	TempPath string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"temp_downloads"`
}

// YtDlpConfig controls how the downloader binary is invoked.
type YtDlpConfig struct {
	Path               string `yaml:"path" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	UserAgent          string `yaml:"user_agent" envconfig:"YTDLP_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	Format             string `yaml:"format" envconfig:"YTDLP_FORMAT" default:"bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"`
	MergeOutputFormat  string `yaml:"merge_output_format" envconfig:"YTDLP_MERGE_FORMAT" default:"mp4"`
	ExtractorArgs      string `yaml:"extractor_args" envconfig:"YTDLP_EXTRACTOR_ARGS" default:"youtube:player_client=android,web"`
	NoCheckCertificate bool   `yaml:"no_check_certificate" envconfig:"YTDLP_NO_CHECK_CERTIFICATE" default:"true"`
	MetadataMode       string `yaml:"metadata_mode" envconfig:"YTDLP_METADATA_MODE" default:"json"`
	Proxy              string `yaml:"proxy" envconfig:"YTDLP_PROXY"`
	MaxConcurrent      int64  `yaml:"max_concurrent" envconfig:"YTDLP_MAX_CONCURRENT" default:"4"`
}

// CookiesConfig holds the raw Netscape cookie jar handed to the downloader.
type CookiesConfig struct {
	Content string `yaml:"content" envconfig:"YTDLP_COOKIES"`
}

// PoTokenConfig configures the optional proof-of-origin token helper.
type PoTokenConfig struct {
	Command string        `yaml:"command" envconfig:"POTOKEN_COMMAND"`
	Timeout time.Duration `yaml:"timeout" envconfig:"POTOKEN_TIMEOUT" default:"30s"`
	Client  string        `yaml:"client" envconfig:"POTOKEN_CLIENT" default:"web"`
}

// UploadConfig selects and configures the upload target.
type UploadConfig struct {
	Strategy   string        `yaml:"strategy" envconfig:"UPLOAD_STRATEGY" default:"blob"`
	Token      string        `yaml:"token" envconfig:"BLOB_READ_WRITE_TOKEN"`
	URL        string        `yaml:"url" envconfig:"UPLOAD_URL"`
	BackendURL string        `yaml:"backend_url" envconfig:"BACKEND_UPLOAD_URL"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"UPLOAD_TIMEOUT" default:"5m"`
	S3         S3Config      `yaml:"s3"`
}

// S3Config holds settings for the S3-compatible upload target.
type S3Config struct {
	Bucket          string `yaml:"bucket" envconfig:"S3_BUCKET"`
	Region          string `yaml:"region" envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"S3_SECRET_ACCESS_KEY"`
	PublicBaseURL   string `yaml:"public_base_url" envconfig:"S3_PUBLIC_BASE_URL"`
	KeyPrefix       string `yaml:"key_prefix" envconfig:"S3_KEY_PREFIX" default:"videos/"`
}

// Load reads configuration from a .env file, a YAML file and environment
// variables, in that order. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.Upload.Strategy = strings.ToLower(strings.TrimSpace(cfg.Upload.Strategy))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks values that make the service unable to start.
// Upload credentials are checked per request instead.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port)
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	if c.YtDlp.Path == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if c.YtDlp.MaxConcurrent <= 0 {
		return fmt.Errorf("YTDLP_MAX_CONCURRENT must be positive")
	}
	switch c.YtDlp.MetadataMode {
	case MetadataModeJSON, MetadataModePrint:
	default:
		return fmt.Errorf("unknown YTDLP_METADATA_MODE %q", c.YtDlp.MetadataMode)
	}
	switch strings.ToLower(c.Upload.Strategy) {
	case StrategyStream, StrategyBlob, StrategyPresigned, StrategyBackend, StrategyS3:
	default:
		return fmt.Errorf("unknown UPLOAD_STRATEGY %q", c.Upload.Strategy)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
