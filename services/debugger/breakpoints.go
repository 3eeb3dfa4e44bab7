package debugger

import (
	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/replay"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
)

// Breakpoint lines are 1-based.
type Breakpoint struct {
	ID       int
	Path     string
	Line     int
	Verified bool
}

// SetBreakpoint registers a breakpoint and verifies it against the source maps of the path
// whose programs occur in the trace.
func (r *Runtime) SetBreakpoint(path string, line int) Breakpoint {
	r.nextBreakpointID++
	bp := &Breakpoint{
		ID:   r.nextBreakpointID,
		Path: replay.NormalizePath(path),
		Line: line,
	}
	r.breakpoints[bp.Path] = append(r.breakpoints[bp.Path], bp)

	for _, src := range r.engine.Sources().Known(bp.Path) {
		if lineHasCode(src, bp.Line) {
			bp.Verified = true
			break
		}
	}

	r.logger.Debug().
		Int(logging.FieldBreakpointId, bp.ID).
		Str(logging.FieldPath, bp.Path).
		Int(logging.FieldLine, bp.Line).
		Bool("verified", bp.Verified).
		Msg("Breakpoint set")
	return *bp
}

func (r *Runtime) ClearBreakpoints(path string) {
	delete(r.breakpoints, replay.NormalizePath(path))
}

// Breakpoints returns copies of the breakpoints of a path in creation order.
func (r *Runtime) Breakpoints(path string) []Breakpoint {
	bps := r.breakpoints[replay.NormalizePath(path)]
	res := make([]Breakpoint, len(bps))
	for i, bp := range bps {
		res[i] = *bp
	}
	return res
}

func lineHasCode(src *sourcemap.ProgramSource, line int) bool {
	return line > 0 && len(src.SourceMap.PcsForLine(uint64(line-1))) > 0
}

// verifyAgainst marks the unverified breakpoints of the source's path whose line has code in it.
func (r *Runtime) verifyAgainst(src *sourcemap.ProgramSource) {
	for _, bp := range r.breakpoints[replay.NormalizePath(src.SourcePath)] {
		if !bp.Verified && lineHasCode(src, bp.Line) {
			r.markVerified(bp)
		}
	}
}

func (r *Runtime) verifyKnown() {
	for path := range r.breakpoints {
		for _, src := range r.engine.Sources().Known(path) {
			r.verifyAgainst(src)
		}
	}
}

func (r *Runtime) markVerified(bp *Breakpoint) {
	if bp.Verified {
		return
	}
	bp.Verified = true
	validated := *bp
	r.emit(Event{Kind: EventBreakpointValidated, Breakpoint: &validated})
}

// hitBreakpoints returns the ids of the breakpoints at the current location, verifying them on the way.
// Nothing is hit while the location stays the same as after the previous step.
func (r *Runtime) hitBreakpoints() []int {
	loc, ok := r.currentLocation()
	defer func() { r.lastLocation, r.hasLastLocation = loc, ok }()

	if !ok || (r.hasLastLocation && loc == r.lastLocation) {
		return nil
	}

	var hits []int
	for _, bp := range r.breakpoints[loc.path] {
		if bp.Line == loc.line {
			r.markVerified(bp)
			hits = append(hits, bp.ID)
		}
	}
	return hits
}
