package sourcemap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNoSources = errors.New("source map lists no sources")

// TxnGroupSourceDescriptor links a program hash to the source map of the program.
type TxnGroupSourceDescriptor struct {
	Hash              []byte `json:"hash"`
	SourcemapLocation string `json:"sourcemap-location"`
}

type txnGroupSources struct {
	TxnGroupSources []TxnGroupSourceDescriptor `json:"txn-group-sources"`
}

// ProgramSource is a resolved descriptor: the decoded map and the source file it points to.
type ProgramSource struct {
	Hash          []byte
	SourcemapPath string
	SourcePath    string
	SourceMap     *ProgramSourceMap
}

func (s *ProgramSource) SourceName() string {
	return filepath.Base(s.SourcePath)
}

// InlineContent returns the embedded source text, used when the source file itself is missing.
func (s *ProgramSource) InlineContent() (string, bool) {
	if len(s.SourceMap.SourcesContent) == 0 || s.SourceMap.SourcesContent[0] == "" {
		return "", false
	}
	return s.SourceMap.SourcesContent[0], true
}

// LoadTxnGroupSources reads the descriptor list and every source map it references.
// Relative paths are resolved against the directory of the file that mentions them.
func LoadTxnGroupSources(path string, loader *Loader) ([]*ProgramSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read program sources description %s: %w", path, err)
	}
	var doc txnGroupSources
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("can't decode program sources description %s: %w", path, err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	sources := make([]*ProgramSource, 0, len(doc.TxnGroupSources))
	for i, desc := range doc.TxnGroupSources {
		mapPath := resolve(baseDir, desc.SourcemapLocation)
		m, err := loader.Load(mapPath)
		if err != nil {
			return nil, fmt.Errorf("program source %d: %w", i, err)
		}
		if len(m.Sources) == 0 {
			return nil, fmt.Errorf("program source %d: %s: %w", i, mapPath, ErrNoSources)
		}
		sources = append(sources, &ProgramSource{
			Hash:          desc.Hash,
			SourcemapPath: mapPath,
			SourcePath:    resolve(filepath.Dir(mapPath), m.Sources[0]),
			SourceMap:     m,
		})
	}
	return sources, nil
}

func resolve(baseDir, location string) string {
	if filepath.IsAbs(location) {
		return filepath.Clean(location)
	}
	return filepath.Join(baseDir, location)
}
