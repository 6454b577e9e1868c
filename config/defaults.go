package config

import (
	"time"

	"github.com/canvasflow-ai/canvasflow/store"
)

// DefaultConfig returns a Config with sensible defaults for every section.
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Store:     store.DefaultConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig returns the default execution settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		NodeTimeout:       5 * time.Minute,
		MaxRetries:        0,
		MaxConcurrency:    0,
		RateLimit:         0,
		RateBurst:         1,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "canvasflow",
		SampleRate:   0.1,
	}
}
