package dap

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/go-dap"
	jsoniter "github.com/json-iterator/go"

	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/replay"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
	"github.com/avmdbg/avmdbg/services/debugger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const threadID = 1

var (
	ErrNotLaunched       = errors.New("no debug session has been launched")
	ErrAlreadyLaunched   = errors.New("debug session is already launched")
	ErrMissingTraceFile  = errors.New("launch requires simulateTraceFile")
	ErrPauseNotSupported = errors.New("pause is not supported: replay stops only at breakpoints and steps")
	ErrUnknownFrame      = errors.New("unknown stack frame")
	ErrUnknownVariables  = errors.New("unknown variables reference")
	ErrUnknownSource     = errors.New("unknown source reference")
)

const (
	errIDGeneric = 1000 + iota
	errIDLaunch
	errIDNotLaunched
	errIDReverse
	errIDUnsupported
)

func errorID(err error) int {
	switch {
	case errors.Is(err, ErrNotLaunched):
		return errIDNotLaunched
	case errors.Is(err, debugger.ErrReverseNotSupported):
		return errIDReverse
	case errors.Is(err, ErrPauseNotSupported):
		return errIDUnsupported
	case errors.Is(err, ErrMissingTraceFile), errors.Is(err, ErrAlreadyLaunched):
		return errIDLaunch
	default:
		return errIDGeneric
	}
}

type launchArgs struct {
	SimulateTraceFile             string `json:"simulateTraceFile"`
	ProgramSourcesDescriptionFile string `json:"programSourcesDescriptionFile"`
	StopOnEntry                   bool   `json:"stopOnEntry"`
	NoDebug                       bool   `json:"noDebug"`
}

func (s *session) handle(msg dap.Message) {
	req, ok := msg.(dap.RequestMessage)
	if !ok {
		s.logger.Warn().Msgf("Ignoring non-request message %T", msg)
		return
	}
	r := req.GetRequest()
	s.logger.Trace().Str(logging.FieldCommand, r.Command).Int(logging.FieldRequestId, r.Seq).Msg("Request received")

	err := s.dispatch(msg)
	s.server.metrics.recordRequest(s.ctx, r.Command, err == nil)
	if err != nil {
		s.sendError(r, err)
	}
}

func (s *session) dispatch(msg dap.Message) error {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		return s.onInitialize(req)
	case *dap.LaunchRequest:
		return s.onLaunch(req)
	case *dap.SetBreakpointsRequest:
		return s.onSetBreakpoints(req)
	case *dap.SetExceptionBreakpointsRequest:
		s.send(&dap.SetExceptionBreakpointsResponse{Response: s.newResponse(&req.Request, true, "")})
		return nil
	case *dap.ConfigurationDoneRequest:
		return s.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		s.send(&dap.ThreadsResponse{
			Response: s.newResponse(&req.Request, true, ""),
			Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: threadID, Name: "replay"}}},
		})
		return nil
	case *dap.StackTraceRequest:
		return s.onStackTrace(req)
	case *dap.ScopesRequest:
		return s.onScopes(req)
	case *dap.VariablesRequest:
		return s.onVariables(req)
	case *dap.SourceRequest:
		return s.onSource(req)
	case *dap.ContinueRequest:
		return s.onContinue(req)
	case *dap.NextRequest:
		return s.onStep(&req.Request, func() error { return s.rt.Step(false) }, &dap.NextResponse{})
	case *dap.StepInRequest:
		return s.onStep(&req.Request, s.stepIn, &dap.StepInResponse{})
	case *dap.StepOutRequest:
		return s.onStep(&req.Request, s.stepOut, &dap.StepOutResponse{})
	case *dap.StepBackRequest:
		return s.onStep(&req.Request, func() error { return s.rt.Step(true) }, &dap.StepBackResponse{})
	case *dap.ReverseContinueRequest:
		return s.onStep(&req.Request, func() error { return s.rt.Continue(true) }, &dap.ReverseContinueResponse{})
	case *dap.PauseRequest:
		return ErrPauseNotSupported
	case *dap.TerminateRequest:
		s.send(&dap.TerminateResponse{Response: s.newResponse(&req.Request, true, "")})
		s.sendTerminated()
		return nil
	case *dap.DisconnectRequest:
		s.send(&dap.DisconnectResponse{Response: s.newResponse(&req.Request, true, "")})
		s.closed = true
		return nil
	default:
		r := msg.(dap.RequestMessage).GetRequest()
		return fmt.Errorf("request %q is not supported", r.Command)
	}
}

func (s *session) stepIn() error {
	return s.rt.StepIn()
}

func (s *session) stepOut() error {
	return s.rt.StepOut()
}

func (s *session) onInitialize(req *dap.InitializeRequest) error {
	s.send(&dap.InitializeResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsTerminateRequest:         true,
			SupportsDelayedStackTraceLoading: true,
			SupportsStepBack:                 false,
		},
	})
	return nil
}

func (s *session) onLaunch(req *dap.LaunchRequest) error {
	if s.rt != nil {
		return ErrAlreadyLaunched
	}

	var args launchArgs
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return fmt.Errorf("invalid launch arguments: %w", err)
	}
	if args.SimulateTraceFile == "" {
		return ErrMissingTraceFile
	}

	response, err := trace.LoadSimulateResponse(args.SimulateTraceFile)
	if err != nil {
		return err
	}
	var sources []*sourcemap.ProgramSource
	if args.ProgramSourcesDescriptionFile != "" {
		sources, err = sourcemap.LoadTxnGroupSources(args.ProgramSourcesDescriptionFile, s.server.loader)
		if err != nil {
			return err
		}
	}

	engine := replay.NewEngine(response, replay.NewSourceRegistry(sources), s.componentLogger("replay"))
	s.rt = debugger.NewRuntime(s.ctx, engine, s.server.debuggerMetrics, s.componentLogger("debugger"))
	s.launch = args

	s.logger.Info().
		Str(logging.FieldPath, args.SimulateTraceFile).
		Int("sources", len(sources)).
		Bool("noDebug", args.NoDebug).
		Msg("Trace loaded")

	s.send(&dap.LaunchResponse{Response: s.newResponse(&req.Request, true, "")})
	s.send(&dap.InitializedEvent{Event: s.newEvent("initialized")})
	return nil
}

func toDapBreakpoint(bp debugger.Breakpoint) dap.Breakpoint {
	return dap.Breakpoint{
		Id:       bp.ID,
		Verified: bp.Verified,
		Line:     bp.Line,
		Source:   &dap.Source{Name: filepath.Base(bp.Path), Path: bp.Path},
	}
}

func (s *session) onSetBreakpoints(req *dap.SetBreakpointsRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}

	lines := req.Arguments.Lines
	if len(req.Arguments.Breakpoints) > 0 {
		lines = make([]int, len(req.Arguments.Breakpoints))
		for i, bp := range req.Arguments.Breakpoints {
			lines[i] = bp.Line
		}
	}

	path := req.Arguments.Source.Path
	breakpoints := make([]dap.Breakpoint, 0, len(lines))
	if path == "" {
		// Generated views like transaction groups have no path to break in.
		for _, line := range lines {
			breakpoints = append(breakpoints, dap.Breakpoint{Verified: false, Line: line, Message: "source has no path"})
		}
	} else {
		s.rt.ClearBreakpoints(path)
		for _, line := range lines {
			breakpoints = append(breakpoints, toDapBreakpoint(s.rt.SetBreakpoint(path, line)))
		}
	}

	s.send(&dap.SetBreakpointsResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: breakpoints},
	})
	return nil
}

func (s *session) onConfigurationDone(req *dap.ConfigurationDoneRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}
	s.send(&dap.ConfigurationDoneResponse{Response: s.newResponse(&req.Request, true, "")})
	s.rt.Start(s.launch.StopOnEntry, !s.launch.NoDebug)
	return nil
}

func (s *session) onStackTrace(req *dap.StackTraceRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}

	start := req.Arguments.StartFrame
	frames := s.rt.Frames(start, req.Arguments.Levels)
	stackFrames := make([]dap.StackFrame, len(frames))
	for i, frame := range frames {
		loc := frame.Location()
		sf := dap.StackFrame{
			Id:        frameID(start + i),
			Name:      frame.Name(),
			Source:    s.toDapSource(frame.Source()),
			Line:      loc.Line,
			Column:    loc.Column,
			EndLine:   loc.EndLine,
			EndColumn: loc.EndColumn,
		}
		if sf.Line > 0 && sf.Column == 0 {
			sf.Column = 1
		}
		stackFrames[i] = sf
	}

	s.send(&dap.StackTraceResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body: dap.StackTraceResponseBody{
			StackFrames: stackFrames,
			TotalFrames: s.rt.StackDepth(),
		},
	})
	return nil
}

// Frame ids are 1-based positions from the top of the stack; they are valid until the next step.
func frameID(index int) int {
	return index + 1
}

func (s *session) frame(id int) (*replay.Frame, error) {
	frame, ok := s.rt.Frame(id - 1)
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownFrame, id)
	}
	return frame, nil
}

func (s *session) toDapSource(src *replay.FrameSource) *dap.Source {
	if src == nil {
		return nil
	}
	res := &dap.Source{Name: src.Name, Path: src.Path}
	if src.Content != nil {
		res.SourceReference = s.sources.ref(src.Name, *src.Content)
	}
	if src.Path == "" && src.Content == nil {
		res.PresentationHint = "deemphasize"
		res.Origin = "not available"
	}
	return res
}

func (s *session) onSource(req *dap.SourceRequest) error {
	ref := req.Arguments.SourceReference
	if req.Arguments.Source != nil && req.Arguments.Source.SourceReference != 0 {
		ref = req.Arguments.Source.SourceReference
	}
	content, ok := s.sources.get(ref)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownSource, ref)
	}
	s.send(&dap.SourceResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body:     dap.SourceResponseBody{Content: content.Text, MimeType: content.MimeType},
	})
	return nil
}

func (s *session) onContinue(req *dap.ContinueRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}
	if err := s.rt.Continue(false); err != nil {
		return err
	}
	s.handles.reset()
	s.send(&dap.ContinueResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	})
	return nil
}

func (s *session) onStep(req *dap.Request, step func() error, resp dap.ResponseMessage) error {
	if s.rt == nil {
		return ErrNotLaunched
	}
	if err := step(); err != nil {
		return err
	}
	s.handles.reset()
	*resp.GetResponse() = s.newResponse(req, true, "")
	s.send(resp)
	return nil
}
