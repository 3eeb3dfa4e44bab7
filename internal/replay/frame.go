package replay

import (
	"fmt"

	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
)

type FrameKind int

const (
	FrameGroupList FrameKind = iota
	FrameTxnGroup
	FrameProgram
)

func (k FrameKind) String() string {
	switch k {
	case FrameGroupList:
		return "group-list"
	case FrameTxnGroup:
		return "txn-group"
	case FrameProgram:
		return "program"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

type ProgramKind int

const (
	ProgramLogicSig ProgramKind = iota
	ProgramApproval
	ProgramClearState
)

const (
	MimeJSON = "application/json"
	MimeText = "text/plain"
)

type InlineContent struct {
	MimeType string
	Text     string
}

// FrameSource describes where a frame's code comes from. Path is empty when the program has no
// known source; Content is set when the text is not available as a file.
type FrameSource struct {
	Name    string
	Path    string
	Content *InlineContent
}

// SourceLocation is 1-based. A zero Line means the location is unknown.
type SourceLocation struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

type txnEntry struct {
	result *trace.PendingTxnResult
	trace  *trace.ExecTrace
}

type groupListFrame struct {
	groups  []trace.TxnGroupResult
	index   int
	entered bool
}

type txnGroupFrame struct {
	number int
	inner  bool
	txns   []txnEntry
	view   *groupView

	index           int
	logicSigVisited bool
	appVisited      bool
}

type programFrame struct {
	kind  ProgramKind
	hash  []byte
	units []trace.OpcodeTraceUnit
	txn   txnEntry

	index       int
	state       ProgramState
	innerGroups int

	source      *sourcemap.ProgramSource
	frameSource *FrameSource
}

// Frame is one entry of the replay call stack. Exactly one of the kind payloads is set.
type Frame struct {
	kind      FrameKind
	groupList *groupListFrame
	txnGroup  *txnGroupFrame
	program   *programFrame
}

func (f *Frame) Kind() FrameKind {
	return f.kind
}

func (f *Frame) Name() string {
	switch f.kind {
	case FrameGroupList:
		return "transaction groups"
	case FrameTxnGroup:
		if f.txnGroup.inner {
			return fmt.Sprintf("inner transaction group %d", f.txnGroup.number)
		}
		return fmt.Sprintf("transaction group %d", f.txnGroup.number)
	case FrameProgram:
		return f.program.name()
	}
	panic(fmt.Sprintf("unexpected frame kind %s", f.kind))
}

func (p *programFrame) name() string {
	if p.kind == ProgramLogicSig {
		return "logic sig"
	}
	suffix := "approval"
	if p.kind == ProgramClearState {
		suffix = "clear state"
	}
	if appID, ok := p.appID(); ok {
		return fmt.Sprintf("app %d %s", appID, suffix)
	}
	return "app " + suffix
}

func (p *programFrame) appID() (uint64, bool) {
	if p.kind == ProgramLogicSig || p.txn.result == nil {
		return 0, false
	}
	return p.txn.result.AppID()
}

// Source returns nil for frames without any code to show.
func (f *Frame) Source() *FrameSource {
	switch f.kind {
	case FrameGroupList:
		return nil
	case FrameTxnGroup:
		return &FrameSource{
			Name:    f.Name() + ".json",
			Content: &InlineContent{MimeType: MimeJSON, Text: f.txnGroup.view.text},
		}
	case FrameProgram:
		return f.program.frameSource
	}
	panic(fmt.Sprintf("unexpected frame kind %s", f.kind))
}

func (f *Frame) Location() SourceLocation {
	switch f.kind {
	case FrameGroupList:
		return SourceLocation{}
	case FrameTxnGroup:
		g := f.txnGroup
		if g.index >= len(g.view.spans) {
			return SourceLocation{}
		}
		span := g.view.spans[g.index]
		return SourceLocation{Line: span.start, EndLine: span.end}
	case FrameProgram:
		p := f.program
		if p.source == nil {
			return SourceLocation{}
		}
		line, ok := p.source.SourceMap.LineForPc(p.state.PC)
		if !ok {
			return SourceLocation{}
		}
		return SourceLocation{Line: int(line) + 1}
	}
	panic(fmt.Sprintf("unexpected frame kind %s", f.kind))
}

// ProgramState is only available on program frames.
func (f *Frame) ProgramState() (*ProgramState, bool) {
	if f.kind != FrameProgram {
		return nil, false
	}
	return &f.program.state, true
}

func (f *Frame) ProgramKind() (ProgramKind, bool) {
	if f.kind != FrameProgram {
		return 0, false
	}
	return f.program.kind, true
}

func (f *Frame) ProgramHash() []byte {
	if f.kind != FrameProgram {
		return nil
	}
	return f.program.hash
}

// AppID is the application a program frame runs for. Logic sigs have none.
func (f *Frame) AppID() (uint64, bool) {
	if f.kind != FrameProgram {
		return 0, false
	}
	return f.program.appID()
}
