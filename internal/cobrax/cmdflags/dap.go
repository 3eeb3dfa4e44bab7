package cmdflags

import (
	"github.com/spf13/pflag"

	"github.com/avmdbg/avmdbg/services/dap"
)

func AddDap(fset *pflag.FlagSet, config *dap.Config) {
	fset.StringVar(&config.Listen, "listen", config.Listen, "address to accept debug adapter connections on")
	fset.IntVar(&config.SourceMapCacheSize, "source-map-cache-size", config.SourceMapCacheSize,
		"number of decoded source maps kept in memory")
}
