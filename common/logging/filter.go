package logging

import (
	"io"
	"os"
	"strings"
	"sync"
)

const filterEnv = "AVMDBG_LOG_FILTER"

// componentFilter enables or disables loggers by component name. Components without an explicit
// setting follow the "all" switch.
type componentFilter struct {
	mu        sync.RWMutex
	all       bool
	overrides map[string]bool
}

var components = &componentFilter{all: true, overrides: make(map[string]bool)}

func (f *componentFilter) enabled(component string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if enabled, ok := f.overrides[component]; ok {
		return enabled
	}
	return f.all
}

// apply parses "all:-dap:replay". A leading '-' disables; "all" resets every component.
func (f *componentFilter) apply(spec string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range strings.Split(spec, ":") {
		name, disabled := strings.CutPrefix(item, "-")
		switch name {
		case "":
		case "all":
			f.all = !disabled
			clear(f.overrides)
		default:
			f.overrides[name] = !disabled
		}
	}
}

type filteredWriter struct {
	out       io.Writer
	component string
}

func (w filteredWriter) Write(p []byte) (int, error) {
	if !components.enabled(w.component) {
		return len(p), nil
	}
	return w.out.Write(p)
}

// ApplyComponentsFilter enables and disables components, e.g. "all:-dap" silences the adapter.
func ApplyComponentsFilter(spec string) {
	components.apply(spec)
}

func applyComponentsFilterEnv() {
	if spec := os.Getenv(filterEnv); spec != "" {
		ApplyComponentsFilter(spec)
	}
}
