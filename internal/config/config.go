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
	Mode        string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	YouTube YouTubeConfig

	Scheduler SchedulerConfig

	SubmitLimit SubmitLimitConfig

	VerifierWorkers   int
	VerifierQueueSize int

	// OperatorRoles maps an operator id to a role name (admin, finance, viewer).
	OperatorRoles map[string]string
}

type YouTubeConfig struct {
	APIKey          string
	RequestsPerSec  float64
	Burst           int
	RequestTimeout  time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// TelemetryConfig is the raw logging and tracing input; observability
// normalizes it.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	TraceEnabled  bool
	SamplingRatio float64
}

// SubmitLimitConfig caps clip submissions per creator. Zero disables it.
type SubmitLimitConfig struct {
	PerMinute float64
	Burst     int
}

type SchedulerConfig struct {
	RunInterval time.Duration
	BatchSize   int
	EnabledJobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "clipperpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Mode:              normalizeMode(getenv("APP_MODE", ModeMonolith)),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			TraceEnabled:  getenvBool("OTEL_ENABLED", false),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "clipperpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "clipperpay.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisURL:          strings.TrimSpace(getenv("REDIS_URL", "")),
		YouTube: YouTubeConfig{
			APIKey:          strings.TrimSpace(getenv("YOUTUBE_API_KEY", "")),
			RequestsPerSec:  getenvFloat("YOUTUBE_RPS", 5),
			Burst:           getenvInt("YOUTUBE_BURST", 5),
			RequestTimeout:  getenvDuration("YOUTUBE_TIMEOUT", 10*time.Second),
			BreakerTimeout:  getenvDuration("YOUTUBE_BREAKER_TIMEOUT", 30*time.Second),
			BreakerFailures: uint32(getenvInt("YOUTUBE_BREAKER_FAILURES", 3)),
		},
		Scheduler: SchedulerConfig{
			RunInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
			EnabledJobs: parseList(getenv("SCHEDULER_JOBS", "")),
		},
		SubmitLimit: SubmitLimitConfig{
			PerMinute: getenvFloat("CLIP_SUBMIT_PER_MINUTE", 10),
			Burst:     getenvInt("CLIP_SUBMIT_BURST", 5),
		},
		VerifierWorkers:   getenvInt("VERIFIER_WORKERS", 4),
		VerifierQueueSize: getenvInt("VERIFIER_QUEUE_SIZE", 1024),
		OperatorRoles:     parseRoles(getenv("OPERATOR_ROLES", "")),
	}

	return cfg
}

const (
	ModeMonolith  = "monolith"
	ModeAPI       = "api"
	ModeScheduler = "scheduler"
)

// RunsScheduler reports whether the periodic jobs belong to this process.
func (c Config) RunsScheduler() bool {
	return c.Mode == ModeMonolith || c.Mode == ModeScheduler
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeAPI, ModeScheduler:
		return value
	default:
		return ModeMonolith
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

func getenvBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseRoles reads "alice=admin,bob=finance".
func parseRoles(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range parseList(raw) {
		id, role, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		role = strings.ToLower(strings.TrimSpace(role))
		if !ok || id == "" || role == "" {
			continue
		}
		out[id] = role
	}
	return out
}
