package observability

import (
	"testing"

	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "development", AppVersion: "1.2.3", OTLPEndpoint: " collector:4317 "})

	assert.Equal(t, "frostclub", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 0.0001)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigKeepsObservabilitySettings(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "frostclub-api",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:      "warn",
			LogFormat:     "console",
			OtelEnabled:   true,
			OtelProtocol:  "http/protobuf",
			SamplingRatio: 1,
		},
	})

	assert.Equal(t, "frostclub-api", cfg.ServiceName)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.InDelta(t, 1.0, cfg.OtelSamplingRatio, 0.0001)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestDebugFollowsLevelInProduction(t *testing.T) {
	cfg := Config{Environment: "production", LogLevel: "info"}
	assert.False(t, cfg.Debug())

	cfg.LogLevel = "DEBUG"
	assert.True(t, cfg.Debug())
}
