package replaytest

import (
	"fmt"
	"strings"

	"github.com/avmdbg/avmdbg/internal/sourcemap"
)

const vlqAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func encodeVlq(b *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = uint64(-v)<<1 | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u != 0 {
			digit |= 32
		}
		b.WriteByte(vlqAlphabet[digit])
		if u == 0 {
			return
		}
	}
}

// Mappings encodes a source map mappings string. lines[pc] is the 1-based line of pc, or 0
// when the pc has no line.
func Mappings(lines []int) string {
	var b strings.Builder
	prev := 0
	for pc, line := range lines {
		if pc > 0 {
			b.WriteByte(';')
		}
		if line == 0 {
			continue
		}
		b.WriteString("AA")
		encodeVlq(&b, int64(line-1-prev))
		b.WriteString("A")
		prev = line - 1
	}
	return b.String()
}

// ProgramSource builds a source for a program whose pc -> line table is lines.
func ProgramSource(hash []byte, sourcePath string, lines []int) *sourcemap.ProgramSource {
	doc := fmt.Sprintf(`{"version": 3, "sources": [%q], "mappings": %q}`, sourcePath, Mappings(lines))
	m, err := sourcemap.Decode([]byte(doc))
	if err != nil {
		panic(err)
	}
	return &sourcemap.ProgramSource{
		Hash:          hash,
		SourcemapPath: sourcePath + ".map",
		SourcePath:    sourcePath,
		SourceMap:     m,
	}
}

// Lines builds a pc -> line table from (pc, line) pairs.
func Lines(pairs ...[2]int) []int {
	size := 0
	for _, p := range pairs {
		size = max(size, p[0]+1)
	}
	lines := make([]int, size)
	for _, p := range pairs {
		lines[p[0]] = p[1]
	}
	return lines
}
