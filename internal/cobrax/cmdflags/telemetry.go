package cmdflags

import (
	"github.com/spf13/pflag"

	"github.com/avmdbg/avmdbg/internal/telemetry"
)

func AddTelemetry(fset *pflag.FlagSet, config *telemetry.Config) {
	fset.BoolVar(&config.ExportMetrics, "metrics", config.ExportMetrics, "export metrics via grpc")
	fset.StringVar(&config.GrpcEndpoint, "metrics-endpoint", config.GrpcEndpoint, "OTLP grpc endpoint for metrics")
	fset.IntVar(&config.PrometheusPort, "prometheus-port", config.PrometheusPort, "port to serve prometheus metrics; 0 to disable")
}
