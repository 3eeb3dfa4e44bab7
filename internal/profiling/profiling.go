package profiling

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/logging"
)

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start serves pprof on localhost until ctx is done. A zero port disables it.
func Start(ctx context.Context, port int, logger zerolog.Logger) {
	if port == 0 {
		return
	}

	server := &http.Server{
		Addr:              "localhost:" + strconv.Itoa(port),
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	context.AfterFunc(ctx, func() {
		_ = server.Close()
	})

	go func() {
		logger.Info().Str(logging.FieldAddress, server.Addr).Msg("Serving pprof")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("pprof server failed")
		}
	}()
}
