package sourcemap

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	gosourcemap "github.com/go-sourcemap/sourcemap"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUnsupportedVersion = errors.New("unsupported source map version")
	ErrInvalidMappings    = errors.New("invalid source map mappings")
	ErrNegativeLine       = errors.New("source map line went negative")
)

// ProgramSourceMap is a PC<->line index over a version 3 source map whose mappings
// carry one generated line per program counter. Lines are 0-based.
type ProgramSourceMap struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names,omitempty"`
	Mappings       string   `json:"mappings"`

	pcToLine  map[uint64]uint64
	lineToPcs map[uint64][]uint64
}

func Decode(data []byte) (*ProgramSourceMap, error) {
	var m ProgramSourceMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("can't decode source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	if err := m.index(data); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *ProgramSourceMap) index(data []byte) error {
	m.pcToLine = make(map[uint64]uint64)
	m.lineToPcs = make(map[uint64][]uint64)
	if m.Mappings == "" {
		return nil
	}

	consumer, err := gosourcemap.Parse("", data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMappings, err)
	}

	// Generated lines are 1-based and a pc's own line is its first segment, at column 0.
	// Empty groups are skipped: the consumer would match them to the previous pc.
	for pc, group := range strings.Split(m.Mappings, ";") {
		if group == "" {
			continue
		}
		_, _, line, _, ok := consumer.Source(pc+1, 0)
		if !ok {
			continue
		}
		if line < 1 {
			return fmt.Errorf("pc %d: %w", pc, ErrNegativeLine)
		}
		m.pcToLine[uint64(pc)] = uint64(line - 1)
		m.lineToPcs[uint64(line-1)] = append(m.lineToPcs[uint64(line-1)], uint64(pc))
	}
	return nil
}

// LineForPc returns the best known source line of the program counter.
func (m *ProgramSourceMap) LineForPc(pc uint64) (uint64, bool) {
	line, ok := m.pcToLine[pc]
	return line, ok
}

// PcsForLine returns every program counter mapped to the line, in ascending order.
func (m *ProgramSourceMap) PcsForLine(line uint64) []uint64 {
	return slices.Clone(m.lineToPcs[line])
}
