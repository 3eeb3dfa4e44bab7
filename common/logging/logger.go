package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// SetupGlobalLogger sets the minimal level of every logger and reads AVMDBG_LOG_FILTER.
func SetupGlobalLogger(level string) {
	if err := SetLevel(level); err != nil {
		panic(err)
	}
	applyComponentsFilterEnv()
}

func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

// NewLogger writes human-readable records to stderr, colored when stderr is a terminal.
func NewLogger(component string) zerolog.Logger {
	noColor := os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stderr.Fd()))
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			FieldComponent,
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{FieldComponent},
		FormatFieldValue: func(v any) string {
			if noColor {
				return fmt.Sprintf("[%s]", v)
			}
			return fmt.Sprintf("\x1b[1m[%s]\x1b[0m", v)
		},
	}
	return newLogger(component, console)
}

// NewLoggerWithWriter writes JSON records, one per line.
func NewLoggerWithWriter(component string, out io.Writer) zerolog.Logger {
	return newLogger(component, out)
}

func newLogger(component string, out io.Writer) zerolog.Logger {
	return zerolog.New(filteredWriter{out: out, component: component}).
		With().
		Str(FieldComponent, component).
		Timestamp().
		Logger()
}

// SessionLogger tags every record of a debug session with its id.
func SessionLogger(logger zerolog.Logger, sessionID string) zerolog.Logger {
	return logger.With().Str(FieldSessionId, sessionID).Logger()
}

func Nop() zerolog.Logger {
	return zerolog.Nop()
}
