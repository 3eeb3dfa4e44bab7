package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/avmdbg/avmdbg/common/check"
	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/cobrax"
	"github.com/avmdbg/avmdbg/internal/cobrax/cmdflags"
	"github.com/avmdbg/avmdbg/internal/profiling"
	"github.com/avmdbg/avmdbg/internal/telemetry"
	"github.com/avmdbg/avmdbg/services/dap"
	"github.com/avmdbg/avmdbg/services/debugger"
)

const appTitle = "avmdbg"

type config struct {
	LogLevel  string            `yaml:"logLevel,omitempty"`
	PprofPort int               `yaml:"pprofPort,omitempty"`
	DAP       *dap.Config       `yaml:"dap,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

func newDefaultConfig() *config {
	return &config{
		LogLevel:  "info",
		DAP:       dap.NewDefaultConfig(),
		Telemetry: telemetry.NewDefaultConfig(),
	}
}

func main() {
	check.PanicIfNotCancelledErr(execute())
}

func execute() error {
	cfg := newDefaultConfig()
	// The config file provides flag defaults, so it is read before the flags are parsed.
	if err := cobrax.LoadConfigFromFile(cobrax.GetConfigNameFromArgs(), cfg); err != nil {
		return err
	}
	if cfg.DAP == nil {
		cfg.DAP = dap.NewDefaultConfig()
	}

	env := cobrax.NewEnv("AVMDBG")

	rootCmd := &cobra.Command{
		Use:           appTitle + " [global flags] [command]",
		Short:         "Replay debugger for AVM simulation traces",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cobrax.ApplyEnv(env, cmd.Flags()); err != nil {
				return err
			}
			logging.SetupGlobalLogger(cfg.LogLevel)
			return nil
		},
	}
	cobrax.AddConfigFlag(rootCmd.PersistentFlags())
	cobrax.AddLogLevelFlag(rootCmd.PersistentFlags(), &cfg.LogLevel)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the debug adapter server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	cmdflags.AddDap(serveCmd.Flags(), cfg.DAP)
	cobrax.AddPprofPortFlag(serveCmd.Flags(), &cfg.PprofPort)
	cmdflags.AddTelemetry(serveCmd.Flags(), cfg.Telemetry)

	rootCmd.AddCommand(serveCmd, newReplayCmd(), cobrax.VersionCmd(appTitle))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runServe(ctx context.Context, cfg *config) error {
	logger := logging.NewLogger(appTitle)

	profiling.Start(ctx, cfg.PprofPort, logger)

	if err := telemetry.Init(ctx, cfg.Telemetry); err != nil {
		return err
	}
	defer telemetry.Shutdown(ctx)

	meter := telemetry.NewMeter(appTitle)
	dapMetrics, err := dap.NewMetrics(meter, clockwork.NewRealClock(), nil)
	if err != nil {
		return err
	}
	debuggerMetrics, err := debugger.NewMetrics(meter, nil)
	if err != nil {
		return err
	}

	server, err := dap.NewServer(cfg.DAP, dapMetrics, debuggerMetrics, logging.NewLogger("dap"))
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gCtx)
	})
	g.Go(func() error {
		return telemetry.RunPrometheusServer(gCtx, cfg.Telemetry, logger)
	})
	err = g.Wait()
	logger.Info().Err(err).Msg("Server stopped")
	return err
}
