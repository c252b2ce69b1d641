package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Pipeline PipelineConfig
	Tokens   TokenConfig
	Access   AccessConfig
	Auth     AuthConfig
	Tracing  TracingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// PipelineConfig holds transcoding pipeline configuration
type PipelineConfig struct {
	FFmpegPath     string
	FFprobePath    string
	UploadDir      string
	ProcessedDir   string
	MaxConcurrent  int64
	SegmentSeconds int
	ThumbnailAt    time.Duration
	PreviewStart   time.Duration
	PreviewLength  time.Duration
}

// TokenConfig holds streaming token configuration
type TokenConfig struct {
	Secret     string
	MasterTTL  time.Duration
	SegmentTTL time.Duration
}

// AccessConfig holds entitlement cache configuration
type AccessConfig struct {
	TTL time.Duration
}

// AuthConfig holds session authentication configuration
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	ServiceName    string
	JaegerEndpoint string
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Port int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.baseURL", "http://localhost:8080")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "streamgate")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "movies")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Pipeline defaults
	viper.SetDefault("pipeline.ffmpegPath", "ffmpeg")
	viper.SetDefault("pipeline.ffprobePath", "ffprobe")
	viper.SetDefault("pipeline.uploadDir", "uploads")
	viper.SetDefault("pipeline.processedDir", "processed")
	viper.SetDefault("pipeline.maxConcurrent", 2)
	viper.SetDefault("pipeline.segmentSeconds", 10)
	viper.SetDefault("pipeline.thumbnailAt", "60s")
	viper.SetDefault("pipeline.previewStart", "60s")
	viper.SetDefault("pipeline.previewLength", "5s")

	// Token defaults
	viper.SetDefault("tokens.secret", "change-me-in-production")
	viper.SetDefault("tokens.masterTTL", "10m")
	viper.SetDefault("tokens.segmentTTL", "5m")

	// Access cache defaults
	viper.SetDefault("access.ttl", "5m")

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "change-me-in-production")
	viper.SetDefault("auth.sessionTTL", "24h")

	// Tracing defaults
	viper.SetDefault("tracing.serviceName", "streamgate")
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Metrics defaults
	viper.SetDefault("metrics.port", 9091)
}
