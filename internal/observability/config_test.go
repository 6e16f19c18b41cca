package observability

import (
	"testing"

	"github.com/smallbiznis/directory/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	got := LoadConfig(config.Config{
		AppName:      "  ",
		Environment:  "production",
		AppVersion:   "1.2.0",
		OTLPEndpoint: "collector:4318",
		Observability: config.ObservabilityConfig{
			LogLevel:      "WARNING",
			LogFormat:     "text",
			OtelEnabled:   true,
			OtelProtocol:  "http/protobuf",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "directory", got.ServiceName)
	assert.Equal(t, "warn", got.LogLevel)
	assert.Equal(t, "json", got.LogFormat)
	assert.True(t, got.OtelEnabled)
	assert.Equal(t, "http", got.OtelExporterProtocol)
	assert.Equal(t, 1.0, got.OtelSamplingRatio)
	assert.False(t, got.Debug())
}

func TestOtelNeedsEndpoint(t *testing.T) {
	got := LoadConfig(config.Config{
		Environment:   "test",
		Observability: config.ObservabilityConfig{OtelEnabled: true},
	})
	assert.False(t, got.OtelEnabled)
	assert.Equal(t, "grpc", got.OtelExporterProtocol)
	assert.True(t, got.Debug())
}

func TestProjectedConfigs(t *testing.T) {
	cfg := Config{
		ServiceName:          "directory",
		Environment:          "production",
		LogLevel:             "warn",
		LogFormat:            "json",
		OtelEnabled:          true,
		OtelExporterEndpoint: "collector:4317",
		OtelExporterProtocol: "grpc",
		OtelSamplingRatio:    0.25,
	}

	lc := cfg.loggerConfig()
	assert.Equal(t, "warn", lc.Level)
	assert.False(t, lc.Debug)
	assert.False(t, lc.IncludeStackOnError)

	tc := cfg.tracingConfig()
	assert.True(t, tc.Enabled)
	assert.Equal(t, 0.25, tc.SamplingRatio)

	mc := cfg.metricsConfig()
	assert.Equal(t, "collector:4317", mc.ExporterEndpoint)
	assert.Equal(t, "production", mc.Environment)
}
