package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit RateLimitConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
	Export    ExportConfig
	Bootstrap BootstrapConfig
}

// ObservabilityConfig controls logging and OpenTelemetry export.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

// NotifyConfig selects the outbound delivery providers for notifications.
// Provider drives the email channel, SMSProvider the sms channel.
type NotifyConfig struct {
	Provider    string
	SMSProvider string
	MaxAttempts int
	BatchSize   int
	FromEmail   string
	AWSRegion   string
	SNSSender   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
	LockTTL      time.Duration
	// Jobs is a comma separated allow list; empty runs every job.
	Jobs         string
}

// ExportConfig configures the saturation remote-write export.
type ExportConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

type BootstrapConfig struct {
	AdminAPIKey string
}

const (
	ProviderLog  = "log"
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
	ProviderSNS  = "sns"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "directory"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "")),
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "directory"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getenvFloat("RATE_LIMIT_RPS", 5),
			Burst:   int(getenvInt64("RATE_LIMIT_BURST", 20)),
		},
		Notify: NotifyConfig{
			Provider:     strings.ToLower(getenv("NOTIFY_PROVIDER", ProviderLog)),
			SMSProvider:  strings.ToLower(getenv("NOTIFY_SMS_PROVIDER", ProviderLog)),
			MaxAttempts:  int(getenvInt64("NOTIFY_MAX_ATTEMPTS", 5)),
			BatchSize:    int(getenvInt64("NOTIFY_BATCH_SIZE", 50)),
			FromEmail:    getenv("NOTIFY_FROM_EMAIL", "no-reply@directorio.local"),
			AWSRegion:    getenv("AWS_REGION", "us-east-1"),
			SNSSender:    getenv("NOTIFY_SNS_SENDER_ID", "Directorio"),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getenvBool("SCHEDULER_ENABLED", true),
			TickInterval: getenvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			LockTTL:      getenvDuration("SCHEDULER_LOCK_TTL", 5*time.Minute),
			Jobs:         strings.TrimSpace(os.Getenv("SCHEDULER_JOBS")),
		},
		Export: ExportConfig{
			Enabled:   getenvBool("SATURATION_EXPORT_ENABLED", false),
			Exporter:  strings.ToLower(getenv("SATURATION_EXPORT_EXPORTER", "prometheus_remote_write")),
			Endpoint:  strings.TrimSpace(getenv("SATURATION_EXPORT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("SATURATION_EXPORT_AUTH_TOKEN", "")),
			Interval:  getenvDuration("SATURATION_EXPORT_INTERVAL", 5*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminAPIKey: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_API_KEY", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
