package dap

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/services/debugger"
)

type Config struct {
	Listen             string `yaml:"listen,omitempty"`
	SourceMapCacheSize int    `yaml:"sourceMapCacheSize,omitempty"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:4711",
		SourceMapCacheSize: sourcemap.DefaultCacheSize,
	}
}

// Server accepts Debug Adapter Protocol connections. Every connection is an independent session.
type Server struct {
	config          *Config
	loader          *sourcemap.Loader
	metrics         *Metrics
	debuggerMetrics *debugger.Metrics
	logger          zerolog.Logger

	// componentLogger creates the loggers of the replay engine and runtime of each session.
	componentLogger func(component string) zerolog.Logger
}

func NewServer(
	config *Config,
	metrics *Metrics,
	debuggerMetrics *debugger.Metrics,
	logger zerolog.Logger,
) (*Server, error) {
	loader, err := sourcemap.NewLoader(config.SourceMapCacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		config:          config,
		loader:          loader,
		metrics:         metrics,
		debuggerMetrics: debuggerMetrics,
		logger:          logger,
		componentLogger: logging.NewLogger,
	}, nil
}

func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Listen)
	if err != nil {
		return err
	}
	s.logger.Info().Str(logging.FieldAddress, ln.Addr().String()).Msg("Debug adapter listening")
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is done, then waits for the open sessions to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs one session over conn and closes it when the session ends.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	id := uuid.NewString()
	logger := logging.SessionLogger(s.logger, id)

	finished := s.metrics.startSession()

	logger.Info().Msg("Session started")
	newSession(ctx, s, conn, id, logger).run()
	logger.Info().Dur(logging.FieldDuration, finished(ctx)).Msg("Session finished")
}
