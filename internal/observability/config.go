package observability

import (
	"strings"

	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/zap/zapcore"
)

const (
	defaultServiceName = "clipperpay"
	formatJSON         = "json"
	formatConsole      = "console"
)

// Config is the normalized logging, tracing and metrics setup for a process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelSamplingRatio    float64
}

// LoadConfig derives the observability setup from the application config.
// An unknown level falls back to info, an unknown format to json, and the
// sampling ratio is clamped to [0, 1]. Tracing stays off without an endpoint.
func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	t := cfg.Telemetry

	return Config{
		ServiceName:          name,
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             normalizeLevel(t.LogLevel),
		LogFormat:            normalizeFormat(t.LogFormat),
		OtelEnabled:          t.TraceEnabled && endpoint != "",
		OtelExporterEndpoint: endpoint,
		OtelSamplingRatio:    clampRatio(t.SamplingRatio),
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if c.LogLevel == zapcore.DebugLevel.String() {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func normalizeLevel(raw string) string {
	level, err := zapcore.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return zapcore.InfoLevel.String()
	}
	return level.String()
}

func normalizeFormat(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), formatConsole) {
		return formatConsole
	}
	return formatJSON
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
