package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/avmdbg/avmdbg/internal/telemetry/internal"
)

type Meter = metric.Meter

type Config struct {
	ServiceName string `yaml:"serviceName,omitempty"`

	// ExportMetrics pushes metrics to an OTLP collector at GrpcEndpoint (the exporter default when empty).
	ExportMetrics bool   `yaml:"exportMetrics,omitempty"`
	GrpcEndpoint  string `yaml:"grpcEndpoint,omitempty"`

	// PrometheusPort serves process metrics on /metrics; 0 disables it.
	PrometheusPort int `yaml:"prometheusPort,omitempty"`
}

func NewDefaultConfig() *Config {
	// https://opentelemetry.io/docs/languages/sdk-configuration/general/#otel_service_name
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "avmdbg"
	}
	return &Config{ServiceName: serviceName}
}

// Init installs the global meter provider. Without export, meters stay no-op.
func Init(ctx context.Context, config *Config) error {
	if config == nil || !config.ExportMetrics {
		return nil
	}
	return internal.InitMetrics(ctx, config.ServiceName, config.GrpcEndpoint)
}

func Shutdown(ctx context.Context) {
	internal.ShutdownMetrics(ctx)
}

// RunPrometheusServer serves /metrics until ctx is done. It returns immediately when the port is not set.
func RunPrometheusServer(ctx context.Context, config *Config, logger zerolog.Logger) error {
	if config == nil || config.PrometheusPort == 0 {
		return nil
	}
	return internal.RunPrometheusServer(ctx, config.ServiceName, config.PrometheusPort, logger)
}

func NewMeter(name string) Meter {
	return otel.Meter(name)
}
