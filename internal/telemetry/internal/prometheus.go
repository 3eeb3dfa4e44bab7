package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/version"
)

const shutdownTimeout = 5 * time.Second

// newRegistry exposes runtime and process metrics plus an info gauge carrying the build version.
func newRegistry(serviceName string) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := version.GetInfo()
	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "avmdbg_build_info",
		Help:        "Build of the running debugger.",
		ConstLabels: prometheus.Labels{"service": serviceName, "version": info.Version, "commit": info.Commit},
	})
	build.Set(1)
	registry.MustRegister(build)
	return registry
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.logger.Error().Msgf("Metrics handler panic: %v", args)
}

func newMetricsHandler(registry *prometheus.Registry, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(true),
	)(mux)
}

func RunPrometheusServer(ctx context.Context, serviceName string, port int, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           newMetricsHandler(newRegistry(serviceName), logger),
		ReadHeaderTimeout: shutdownTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.Info().Int("port", port).Msg("Serving prometheus metrics")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
