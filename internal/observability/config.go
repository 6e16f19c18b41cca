package observability

import (
	"strings"

	"github.com/smallbiznis/directory/internal/config"
)

const defaultServiceName = "directory"

// Config is what the logger, tracer and meter providers need to know about
// the running process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig derives observability settings from the application config.
// Export stays off without an OTLP endpoint even when OTEL_ENABLED is set.
func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             normalizeLevel(obs.LogLevel),
		LogFormat:            normalizeFormat(obs.LogFormat),
		OtelEnabled:          obs.OtelEnabled && endpoint != "",
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: normalizeProtocol(obs.OtelProtocol),
		OtelSamplingRatio:    clampRatio(obs.SamplingRatio),
	}
}

// Debug turns on stack traces and verbose request logs.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "debug", "info", "warn", "error":
		return level
	case "warning":
		return "warn"
	default:
		return "info"
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

func normalizeProtocol(protocol string) string {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return "http"
	default:
		return "grpc"
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
