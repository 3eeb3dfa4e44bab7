package debugger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/concurrent"
	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/replay"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
)

var ErrReverseNotSupported = errors.New("reverse execution not supported")

type location struct {
	depth int
	path  string
	line  int
}

// Runtime drives a replay engine for one debug session. Start, Continue and Step only queue work;
// the owner runs it with RunPending and reads the outcome with TakeEvents. All methods must be
// called from the owner's goroutine.
type Runtime struct {
	ctx     context.Context
	logger  zerolog.Logger
	metrics *Metrics

	engine *replay.Engine

	breakpoints      map[string][]*Breakpoint
	nextBreakpointID int

	debug           bool
	lastLocation    location
	hasLastLocation bool
	err             error

	tasks  *concurrent.Mailbox[func()]
	events *concurrent.Mailbox[Event]
}

// NewRuntime takes ownership of the engine. Metrics may be nil.
func NewRuntime(ctx context.Context, engine *replay.Engine, metrics *Metrics, logger zerolog.Logger) *Runtime {
	r := &Runtime{
		ctx:         ctx,
		logger:      logger,
		metrics:     metrics,
		engine:      engine,
		breakpoints: make(map[string][]*Breakpoint),
		debug:       true,
		tasks:       concurrent.NewMailbox[func()](),
		events:      concurrent.NewMailbox[Event](),
	}
	engine.Sources().OnDiscovered = r.onDiscovered
	return r
}

func (r *Runtime) onDiscovered(src *sourcemap.ProgramSource) {
	r.logger.Debug().Str(logging.FieldPath, src.SourcePath).Msg("Program source reached")
	r.verifyAgainst(src)
}

// Start begins the session. Without debug, breakpoints are ignored and the trace runs to the end.
func (r *Runtime) Start(stopOnEntry, debug bool) {
	r.tasks.Post(func() {
		r.debug = debug
		if debug {
			r.verifyKnown()
			if stopOnEntry {
				r.emit(Event{Kind: EventStopOnEntry})
				return
			}
		}
		r.continueForward()
	})
}

func (r *Runtime) Continue(reverse bool) error {
	if reverse {
		return ErrReverseNotSupported
	}
	r.tasks.Post(r.continueForward)
	return nil
}

func (r *Runtime) Step(reverse bool) error {
	if reverse {
		return ErrReverseNotSupported
	}
	r.tasks.Post(r.stepForward)
	return nil
}

func (r *Runtime) StepIn() error {
	return r.Step(false)
}

func (r *Runtime) StepOut() error {
	return r.Step(false)
}

// TasksReady fires when queued work is waiting for RunPending.
func (r *Runtime) TasksReady() <-chan struct{} {
	return r.tasks.Ready()
}

// RunPending runs the work queued so far, in order.
func (r *Runtime) RunPending() {
	for {
		task, ok := r.tasks.TryTake()
		if !ok {
			return
		}
		task()
	}
}

func (r *Runtime) EventsReady() <-chan struct{} {
	return r.events.Ready()
}

func (r *Runtime) TakeEvents() []Event {
	return r.events.Drain()
}

func (r *Runtime) emit(e Event) {
	ev := r.logger.Debug().Stringer(logging.FieldEvent, e.Kind)
	if e.Breakpoint != nil {
		ev = ev.Int(logging.FieldBreakpointId, e.Breakpoint.ID)
	}
	ev.Msg("Runtime event")
	r.events.Post(e)
}

// Err returns the error that stopped replay, if any.
func (r *Runtime) Err() error {
	return r.err
}

func (r *Runtime) advance() (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	more, err := r.engine.Forward()
	if err != nil {
		r.err = fmt.Errorf("replay failed: %w", err)
		return false, r.err
	}
	return more, nil
}

func (r *Runtime) continueForward() {
	steps := 0
	defer func() { r.metrics.recordSteps(r.ctx, steps) }()

	for {
		more, err := r.advance()
		if err != nil {
			r.emit(Event{Kind: EventError, Err: err})
			return
		}
		steps++
		if !more {
			r.emit(Event{Kind: EventEnd})
			return
		}
		if !r.debug {
			continue
		}
		if hits := r.hitBreakpoints(); len(hits) > 0 {
			r.metrics.recordBreakpointHit(r.ctx)
			r.emit(Event{Kind: EventStopOnBreakpoint, HitBreakpoints: hits})
			return
		}
	}
}

func (r *Runtime) stepForward() {
	more, err := r.advance()
	if err != nil {
		r.emit(Event{Kind: EventError, Err: err})
		return
	}
	r.metrics.recordSteps(r.ctx, 1)

	switch hits := r.hitBreakpoints(); {
	case !more:
		// End of session is reported as a stop so the client can still inspect the final state.
		r.emit(Event{Kind: EventStopOnEntry})
	case len(hits) > 0:
		r.metrics.recordBreakpointHit(r.ctx)
		r.emit(Event{Kind: EventStopOnBreakpoint, HitBreakpoints: hits})
	default:
		r.emit(Event{Kind: EventStopOnStep})
	}
}

func (r *Runtime) currentLocation() (location, bool) {
	top, ok := r.engine.Top()
	if !ok {
		return location{}, false
	}
	src := top.Source()
	if src == nil || src.Path == "" {
		return location{}, false
	}
	return location{
		depth: r.engine.Depth(),
		path:  replay.NormalizePath(src.Path),
		line:  top.Location().Line,
	}, true
}

func (r *Runtime) StackDepth() int {
	return r.engine.Depth()
}

// Frames returns up to count frames from start, top first.
func (r *Runtime) Frames(start, count int) []*replay.Frame {
	return r.engine.Frames(start, count)
}

func (r *Runtime) Frame(i int) (*replay.Frame, bool) {
	return r.engine.Frame(i)
}

func (r *Runtime) AppIDs() []uint64 {
	return r.engine.AppIDs()
}

func (r *Runtime) Accounts(appID uint64) []string {
	return r.engine.Accounts(appID)
}

func (r *Runtime) AppState(appID uint64) *avm.AppState {
	return r.engine.AppState(appID)
}
