package cobrax

import (
	"github.com/spf13/pflag"
)

func AddLogLevelFlag(fset *pflag.FlagSet, dst *string) {
	if *dst == "" {
		*dst = "info"
	}
	fset.StringVarP(dst, "log-level", "l", *dst, "log level: trace|debug|info|warn|error|fatal|panic")
}

func AddPprofPortFlag(fset *pflag.FlagSet, dst *int) {
	fset.IntVar(dst, "pprof-port", *dst, "port to serve pprof profiling information; 0 to disable")
}
