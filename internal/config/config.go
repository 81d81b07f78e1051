package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode  string // Set via flag, not env
	LogLevel string

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort           string
	ServicePort       string
	CorsAllowedOrigin string

	// Email
	SmtpHost         string
	SmtpPort         int
	SmtpUsername     string
	SmtpPassword     string
	SmtpFromAddress  string
	AdminNotifyEmail string
	MockServices     bool

	// AWS S3 (property images)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseURL       string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Admin bootstrap
	AdminName     string
	AdminEmail    string
	AdminPassword string

	// Identity
	IdentityMaxRetries int
	MaxSlugAttempts    int

	// App Defaults
	AppName         string
	PasswordRegexp  string
	ViewDedupWindow time.Duration

	// Rate Limiting
	RateLimitBucketSize             int
	RateLimitRefillRate             int // tokens per second
	InquiryRateLimitBucketSize      int
	InquiryRateLimitRefillPerMinute int
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "egharbari")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServicePort = getEnv("SERVICE_PORT", "8081")
	cfg.CorsAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "*")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@egharbari.com")
	cfg.AdminNotifyEmail = getEnv("ADMIN_NOTIFY_EMAIL", "")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "ap-south-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseURL = getEnv("IMAGE_BASE_URL", "")
	cfg.AdminName = getEnv("ADMIN_NAME", "Administrator")
	cfg.AdminEmail = getEnv("ADMIN_EMAIL", "")
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", "")
	cfg.AppName = getEnv("APP_NAME", "eGharBari")
	cfg.PasswordRegexp = getEnv("PASSWORD_REGEXP", "^.{6,}$")

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "604800"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxDimension, err = getInt("IMAGE_MAX_DIMENSION", "1920"); err != nil {
		return nil, err
	}
	if cfg.ImageMaxSizeMB, err = getInt("IMAGE_MAX_SIZE_MB", "10"); err != nil {
		return nil, err
	}
	if cfg.IdentityMaxRetries, err = getInt("IDENTITY_MAX_RETRIES", "5"); err != nil {
		return nil, err
	}
	if cfg.MaxSlugAttempts, err = getInt("MAX_SLUG_ATTEMPTS", "1000"); err != nil {
		return nil, err
	}

	viewDedupSeconds, err := strconv.ParseInt(getEnv("VIEW_DEDUP_WINDOW_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid VIEW_DEDUP_WINDOW_SECONDS: %w", err)
	}
	cfg.ViewDedupWindow = time.Duration(viewDedupSeconds) * time.Second

	if cfg.RateLimitBucketSize, err = getInt("RATE_LIMIT_BUCKET_SIZE", "40"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getInt("RATE_LIMIT_REFILL_RATE", "20"); err != nil {
		return nil, err
	}
	if cfg.InquiryRateLimitBucketSize, err = getInt("INQUIRY_RATE_LIMIT_BUCKET_SIZE", "5"); err != nil {
		return nil, err
	}
	if cfg.InquiryRateLimitRefillPerMinute, err = getInt("INQUIRY_RATE_LIMIT_REFILL_PER_MINUTE", "2"); err != nil {
		return nil, err
	}

	return cfg, nil
}
