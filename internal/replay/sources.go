package replay

import (
	"os"
	"path/filepath"

	"github.com/avmdbg/avmdbg/common/hexutil"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
)

// NormalizePath turns a client supplied path into the form sources and breakpoints are keyed by.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// SourceRegistry resolves program hashes to their sources. Hashes occurring in the trace are
// registered up front; a hash is "discovered" the first time replay reaches a program with it,
// and OnDiscovered is called once per discovered source.
type SourceRegistry struct {
	byHash     map[string]*sourcemap.ProgramSource
	byPath     map[string][]*sourcemap.ProgramSource
	inTrace    map[string]struct{}
	discovered map[string]struct{}
	fileExists map[string]bool

	OnDiscovered func(src *sourcemap.ProgramSource)
}

func NewSourceRegistry(sources []*sourcemap.ProgramSource) *SourceRegistry {
	r := &SourceRegistry{
		byHash:     make(map[string]*sourcemap.ProgramSource, len(sources)),
		byPath:     make(map[string][]*sourcemap.ProgramSource),
		inTrace:    make(map[string]struct{}),
		discovered: make(map[string]struct{}),
		fileExists: make(map[string]bool),
	}
	for _, src := range sources {
		r.byHash[hexutil.EncodeNo0x(src.Hash)] = src
		path := NormalizePath(src.SourcePath)
		r.byPath[path] = append(r.byPath[path], src)
	}
	return r
}

// Sources returns every program source with the given source path.
func (r *SourceRegistry) Sources(path string) []*sourcemap.ProgramSource {
	return r.byPath[NormalizePath(path)]
}

// Known returns the sources of the path whose programs occur in the trace.
func (r *SourceRegistry) Known(path string) []*sourcemap.ProgramSource {
	var known []*sourcemap.ProgramSource
	for _, src := range r.byPath[NormalizePath(path)] {
		if _, ok := r.inTrace[hexutil.EncodeNo0x(src.Hash)]; ok {
			known = append(known, src)
		}
	}
	return known
}

func (r *SourceRegistry) register(hash []byte) {
	if len(hash) != 0 {
		r.inTrace[hexutil.EncodeNo0x(hash)] = struct{}{}
	}
}

// ProgramCount is the number of distinct program hashes in the trace.
func (r *SourceRegistry) ProgramCount() int {
	return len(r.inTrace)
}

func (r *SourceRegistry) lookup(hash []byte) (*sourcemap.ProgramSource, bool) {
	key := hexutil.EncodeNo0x(hash)
	src, ok := r.byHash[key]
	if !ok {
		return nil, false
	}
	if _, seen := r.discovered[key]; !seen {
		r.discovered[key] = struct{}{}
		if r.OnDiscovered != nil {
			r.OnDiscovered(src)
		}
	}
	return src, true
}

func (r *SourceRegistry) sourceFileExists(path string) bool {
	exists, ok := r.fileExists[path]
	if !ok {
		_, err := os.Stat(path)
		exists = err == nil
		r.fileExists[path] = exists
	}
	return exists
}
