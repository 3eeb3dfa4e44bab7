package sourcemap

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 64

// Loader reads source map files. Parsed maps are cached by absolute path, so programs that
// share a map (e.g. several deployments of one contract) are decoded once.
type Loader struct {
	cache *lru.Cache[string, *ProgramSourceMap]
}

func NewLoader(cacheSize int) (*Loader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *ProgramSourceMap](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache}, nil
}

func (l *Loader) Load(path string) (*ProgramSourceMap, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if m, ok := l.cache.Get(abs); ok {
		return m, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("can't read source map %s: %w", abs, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	l.cache.Add(abs, m)
	return m, nil
}
