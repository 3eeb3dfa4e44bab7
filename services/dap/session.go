package dap

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/google/go-dap"
	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/concurrent"
	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/services/debugger"
)

type incoming struct {
	msg       dap.Message
	decodeErr *dap.DecodeProtocolMessageFieldError
}

type session struct {
	ctx    context.Context
	server *Server
	conn   io.ReadWriteCloser
	id     string
	logger zerolog.Logger

	requests   *concurrent.Mailbox[incoming]
	readerDone chan struct{}

	seq    int
	closed bool

	launch  launchArgs
	rt      *debugger.Runtime
	handles *handles
	sources *sourceRefs
}

func newSession(ctx context.Context, server *Server, conn io.ReadWriteCloser, id string, logger zerolog.Logger) *session {
	return &session{
		ctx:        ctx,
		server:     server,
		conn:       conn,
		id:         id,
		logger:     logger,
		requests:   concurrent.NewMailbox[incoming](),
		readerDone: make(chan struct{}),
		handles:    newHandles(),
		sources:    newSourceRefs(),
	}
}

func (s *session) componentLogger(component string) zerolog.Logger {
	return logging.SessionLogger(s.server.componentLogger(component), s.id)
}

func (s *session) run() {
	err := concurrent.Run(
		concurrent.WithRootName(s.ctx, "dap-session"),
		concurrent.MakeTask("reader", func(context.Context) error {
			s.read()
			return nil
		}),
		concurrent.MakeTask("loop", func(ctx context.Context) error {
			defer s.conn.Close()
			s.loop(ctx)
			return nil
		}),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Session failed")
	}
}

func (s *session) read() {
	defer close(s.readerDone)

	reader := bufio.NewReader(s.conn)
	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			var decodeErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &decodeErr) {
				s.requests.Post(incoming{decodeErr: decodeErr})
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug().Err(err).Msg("Connection closed")
			}
			return
		}
		s.requests.Post(incoming{msg: msg})
	}
}

func (s *session) loop(ctx context.Context) {
	for !s.closed {
		var tasksReady, eventsReady <-chan struct{}
		if s.rt != nil {
			tasksReady = s.rt.TasksReady()
			eventsReady = s.rt.EventsReady()
		}

		select {
		case <-ctx.Done():
			return
		case <-s.requests.Ready():
			s.handleRequests()
		case <-s.readerDone:
			s.handleRequests()
			return
		case <-tasksReady:
			s.rt.RunPending()
		case <-eventsReady:
			for _, e := range s.rt.TakeEvents() {
				s.sendRuntimeEvent(e)
			}
		}
	}
}

func (s *session) handleRequests() {
	for _, in := range s.requests.Drain() {
		if s.closed {
			return
		}
		if in.decodeErr != nil {
			s.sendDecodeError(in.decodeErr)
			continue
		}
		s.handle(in.msg)
	}
}

func (s *session) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *session) send(msg dap.Message) {
	if s.closed {
		return
	}
	if err := dap.WriteProtocolMessage(s.conn, msg); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write message, closing session")
		s.closed = true
	}
}

func (s *session) newResponse(req *dap.Request, success bool, message string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         success,
		Command:         req.Command,
		Message:         message,
	}
}

func (s *session) newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (s *session) sendError(req *dap.Request, err error) {
	s.logger.Debug().Err(err).Str(logging.FieldCommand, req.Command).Msg("Request failed")
	s.send(&dap.ErrorResponse{
		Response: s.newResponse(req, false, err.Error()),
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Id: errorID(err), Format: err.Error(), ShowUser: true},
		},
	})
}

func (s *session) sendDecodeError(err *dap.DecodeProtocolMessageFieldError) {
	s.sendError(&dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: err.Seq, Type: "request"},
		Command:         err.SubType,
	}, err)
}

func (s *session) sendStopped(reason string, hits []int) {
	s.handles.reset()
	s.send(&dap.StoppedEvent{
		Event: s.newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
			HitBreakpointIds:  hits,
		},
	})
}

func (s *session) sendTerminated() {
	s.send(&dap.TerminatedEvent{Event: s.newEvent("terminated")})
}

func (s *session) sendRuntimeEvent(e debugger.Event) {
	switch e.Kind {
	case debugger.EventStopOnEntry:
		s.sendStopped("entry", nil)
	case debugger.EventStopOnStep:
		s.sendStopped("step", nil)
	case debugger.EventStopOnBreakpoint:
		s.sendStopped("breakpoint", e.HitBreakpoints)
	case debugger.EventBreakpointValidated:
		s.send(&dap.BreakpointEvent{
			Event: s.newEvent("breakpoint"),
			Body: dap.BreakpointEventBody{
				Reason:     "changed",
				Breakpoint: toDapBreakpoint(*e.Breakpoint),
			},
		})
	case debugger.EventEnd:
		s.sendTerminated()
	case debugger.EventError:
		s.logger.Error().Err(e.Err).Msg("Replay stopped")
		s.send(&dap.OutputEvent{
			Event: s.newEvent("output"),
			Body: dap.OutputEventBody{
				Category: "stderr",
				Output:   e.Err.Error() + "\n",
			},
		})
		s.sendTerminated()
	}
}
