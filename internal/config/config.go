package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Record backends.
const (
	RecordBackendPostgres = "postgres"
	RecordBackendDynamoDB = "dynamodb"
	RecordBackendMemory   = "memory"
	RecordBackendFormPost = "formpost"
)

// Object backends.
const (
	ObjectBackendS3     = "s3"
	ObjectBackendMemory = "memory"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Record persistence
	RecordBackend           string
	DynamoRegistrationTable string
	FormPostURL             string
	FormPostField           string
	PersistTimeout          time.Duration

	// Asset uploads
	ObjectBackend        string
	UploadBucket         string
	UploadPrefix         string
	UploadPublicBaseURL  string
	UploadTimeout        time.Duration
	CompensateOrphans    bool
	UploadMaxBytes       int64
	PreviewTTL           time.Duration
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	RegistrationQueueURL string

	// Confirmation email
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables, after a best-effort .env load.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RecordBackend:           strings.ToLower(strings.TrimSpace(getEnv("RECORD_BACKEND", RecordBackendMemory))),
		DynamoRegistrationTable: getEnv("DYNAMO_REGISTRATIONS_TABLE", "registrations"),
		FormPostURL:             getEnv("FORM_POST_URL", ""),
		FormPostField:           getEnv("FORM_POST_FIELD", "email"),
		PersistTimeout:          getEnvAsDuration("PERSIST_TIMEOUT", 10*time.Second),

		ObjectBackend:        strings.ToLower(strings.TrimSpace(getEnv("OBJECT_BACKEND", ObjectBackendMemory))),
		UploadBucket:         getEnv("UPLOAD_BUCKET", "character-uploads"),
		UploadPrefix:         getEnv("UPLOAD_PREFIX", ""),
		UploadPublicBaseURL:  getEnv("UPLOAD_PUBLIC_BASE_URL", ""),
		UploadTimeout:        getEnvAsDuration("UPLOAD_TIMEOUT", 30*time.Second),
		CompensateOrphans:    getEnvAsBool("COMPENSATE_ORPHANS", false),
		UploadMaxBytes:       int64(getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20)),
		PreviewTTL:           getEnvAsDuration("PREVIEW_TTL", 30*time.Minute),
		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		RegistrationQueueURL: getEnv("REGISTRATION_QUEUE_URL", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "PartSplit"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
