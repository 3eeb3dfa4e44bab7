package internal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/avmdbg/avmdbg/common/version"
)

const exportInterval = 10 * time.Second

var provider atomic.Pointer[sdkmetric.MeterProvider]

func InitMetrics(ctx context.Context, serviceName, endpoint string) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("can't create metrics exporter: %w", err)
	}

	res, err := newResource(serviceName)
	if err != nil {
		return fmt.Errorf("can't describe metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
		sdkmetric.WithResource(res),
	)
	provider.Store(mp)
	otel.SetMeterProvider(mp)
	return nil
}

// ShutdownMetrics flushes pending measurements. It is a no-op when InitMetrics was not called.
func ShutdownMetrics(ctx context.Context) {
	if mp := provider.Swap(nil); mp != nil {
		_ = mp.Shutdown(context.WithoutCancel(ctx))
	}
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.GetInfo().Version),
		),
	)
}
