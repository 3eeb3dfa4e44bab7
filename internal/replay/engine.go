package replay

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avmdbg/avmdbg/common/check"
	"github.com/avmdbg/avmdbg/common/hexutil"
	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
)

// Engine replays a simulation trace one step at a time. It is not safe for concurrent use.
type Engine struct {
	logger zerolog.Logger

	response *trace.SimulateResponse
	sources  *SourceRegistry

	initial *avm.AppStateStore
	current *avm.AppStateStore

	stack []*Frame
}

func NewEngine(response *trace.SimulateResponse, sources *SourceRegistry, logger zerolog.Logger) *Engine {
	check.PanicIfNot(response != nil)
	if sources == nil {
		sources = NewSourceRegistry(nil)
	}

	e := &Engine{
		logger:   logger,
		response: response,
		sources:  sources,
		initial:  avm.NewAppStateStore(),
	}
	e.loadInitialStates()
	for i := range response.TxnGroups {
		for j := range response.TxnGroups[i].TxnResults {
			txn := &response.TxnGroups[i].TxnResults[j]
			e.scanTxn(&txn.TxnResult, txn.ExecTrace)
		}
	}
	e.current = e.initial.Clone()

	e.push(&Frame{
		kind:      FrameGroupList,
		groupList: &groupListFrame{groups: response.TxnGroups},
	})

	e.logger.Debug().
		Int("groups", len(response.TxnGroups)).
		Int("apps", e.initial.Len()).
		Int("programs", sources.ProgramCount()).
		Msg("Replay engine initialized")
	return e
}

func (e *Engine) loadInitialStates() {
	if e.response.InitialStates == nil {
		return
	}
	for _, init := range e.response.InitialStates.AppInitialStates {
		app := e.initial.Ensure(init.ID)
		if init.AppGlobals != nil {
			for _, kv := range init.AppGlobals.Kvs {
				app.Global.Set(kv.Key, kv.Value.Clone())
			}
		}
		for _, locals := range init.AppLocals {
			local := app.EnsureLocal(locals.Account)
			for _, kv := range locals.Kvs {
				local.Set(kv.Key, kv.Value.Clone())
			}
		}
		if init.AppBoxes != nil {
			for _, kv := range init.AppBoxes.Kvs {
				app.Box.Set(kv.Key, kv.Value.Clone())
			}
		}
	}
}

// scanTxn registers program hashes and pre-creates the local state of every (app, account) pair
// written anywhere in the trace. Apps get no other containers here: global and box writes need
// the app in the initial states.
func (e *Engine) scanTxn(result *trace.PendingTxnResult, execTrace *trace.ExecTrace) {
	if execTrace == nil {
		return
	}
	e.sources.register(execTrace.LogicSigHash)
	e.sources.register(execTrace.ApprovalProgramHash)
	e.sources.register(execTrace.ClearStateProgramHash)

	appID, hasApp := result.AppID()
	for _, units := range [][]trace.OpcodeTraceUnit{execTrace.ApprovalProgramTrace, execTrace.ClearStateProgramTrace} {
		for _, unit := range units {
			for _, op := range unit.StateChanges {
				if hasApp && op.AppStateType == trace.AppStateLocal && op.Operation == trace.OperationWrite && op.Account != "" {
					e.initial.Ensure(appID).EnsureLocal(op.Account)
				}
			}
		}
	}

	for i := range execTrace.InnerTrace {
		inner := &trace.PendingTxnResult{}
		if i < len(result.InnerTxns) {
			inner = &result.InnerTxns[i]
		}
		e.scanTxn(inner, &execTrace.InnerTrace[i])
	}
}

// Forward performs one replay step and reports whether replay is still in progress.
// An error means the trace is inconsistent; the engine must not be stepped afterwards.
func (e *Engine) Forward() (bool, error) {
	if len(e.stack) == 0 {
		return false, nil
	}

	top := e.stack[len(e.stack)-1]
	switch top.kind {
	case FrameGroupList:
		e.forwardGroupList(top.groupList)
	case FrameTxnGroup:
		e.forwardTxnGroup(top.txnGroup)
	case FrameProgram:
		if err := e.forwardProgram(top.program); err != nil {
			e.logger.Error().Err(err).Str(logging.FieldFrameName, top.Name()).Msg("Replay failed")
			return false, err
		}
	default:
		check.PanicIfNotf(false, "unexpected frame kind %s", top.kind)
	}
	return len(e.stack) > 0, nil
}

func (e *Engine) Backward() error {
	return fmt.Errorf("backward step: %w", ErrNotImplemented)
}

func (e *Engine) forwardGroupList(f *groupListFrame) {
	switch {
	case f.index >= len(f.groups):
		e.pop()
	case !f.entered:
		f.entered = true
		group := &f.groups[f.index]
		txns := make([]txnEntry, len(group.TxnResults))
		for i := range group.TxnResults {
			txns[i] = txnEntry{result: &group.TxnResults[i].TxnResult, trace: group.TxnResults[i].ExecTrace}
		}
		e.push(newTxnGroupFrame(f.index, false, txns))
	case f.index+1 < len(f.groups):
		f.index++
		f.entered = false
	default:
		e.pop()
	}
}

func newTxnGroupFrame(number int, inner bool, txns []txnEntry) *Frame {
	return &Frame{
		kind: FrameTxnGroup,
		txnGroup: &txnGroupFrame{
			number: number,
			inner:  inner,
			txns:   txns,
			view:   buildGroupView(txns),
		},
	}
}

func (e *Engine) forwardTxnGroup(f *txnGroupFrame) {
	if f.index >= len(f.txns) {
		e.pop()
		return
	}

	txn := f.txns[f.index]
	if t := txn.trace; t != nil {
		if !f.logicSigVisited {
			f.logicSigVisited = true
			if len(t.LogicSigTrace) > 0 {
				e.pushProgram(ProgramLogicSig, t.LogicSigHash, t.LogicSigTrace, txn)
				return
			}
		}
		if !f.appVisited {
			f.appVisited = true
			switch {
			case len(t.ApprovalProgramTrace) > 0:
				e.pushProgram(ProgramApproval, t.ApprovalProgramHash, t.ApprovalProgramTrace, txn)
				return
			case len(t.ClearStateProgramTrace) > 0:
				e.pushProgram(ProgramClearState, t.ClearStateProgramHash, t.ClearStateProgramTrace, txn)
				return
			}
		}
	}

	if f.index+1 < len(f.txns) {
		f.index++
		f.logicSigVisited = false
		f.appVisited = false
		return
	}
	e.pop()
}

func (e *Engine) pushProgram(kind ProgramKind, hash []byte, units []trace.OpcodeTraceUnit, txn txnEntry) {
	p := &programFrame{
		kind:  kind,
		hash:  hash,
		units: units,
		txn:   txn,
		state: newProgramState(),
	}
	if len(units) > 0 {
		p.state.PC = units[0].Pc
	}
	p.source, p.frameSource = e.resolveSource(hash)
	e.push(&Frame{kind: FrameProgram, program: p})
}

func (e *Engine) resolveSource(hash []byte) (*sourcemap.ProgramSource, *FrameSource) {
	src, ok := e.sources.lookup(hash)
	if !ok {
		e.logger.Debug().Str(logging.FieldProgramHash, hexutil.EncodeNo0x(hash)).Msg("No source for program")
		return nil, &FrameSource{Name: "unknown program"}
	}

	fs := &FrameSource{Name: src.SourceName(), Path: src.SourcePath}
	if !e.sources.sourceFileExists(src.SourcePath) {
		if text, ok := src.InlineContent(); ok {
			fs.Content = &InlineContent{MimeType: MimeText, Text: text}
		}
	}
	return src, fs
}

func (e *Engine) forwardProgram(f *programFrame) error {
	if f.index >= len(f.units) {
		e.pop()
		return nil
	}

	unit := &f.units[f.index]
	if err := e.applyUnit(f, unit); err != nil {
		return err
	}
	f.index++

	if len(unit.SpawnedInners) > 0 {
		txns := make([]txnEntry, len(unit.SpawnedInners))
		for i, idx := range unit.SpawnedInners {
			txns[i] = f.innerTxn(idx)
		}
		e.push(newTxnGroupFrame(f.innerGroups, true, txns))
		f.innerGroups++
	}
	return nil
}

func (f *programFrame) innerTxn(idx uint64) txnEntry {
	var entry txnEntry
	if f.txn.result != nil && idx < uint64(len(f.txn.result.InnerTxns)) {
		entry.result = &f.txn.result.InnerTxns[idx]
	}
	if f.txn.trace != nil && idx < uint64(len(f.txn.trace.InnerTrace)) {
		entry.trace = &f.txn.trace.InnerTrace[idx]
	}
	return entry
}

func (e *Engine) applyUnit(f *programFrame, unit *trace.OpcodeTraceUnit) error {
	st := &f.state
	st.PC = unit.Pc

	depth := uint64(len(st.Stack))
	if unit.StackPopCount > depth {
		return fmt.Errorf("%w: pc %d pops %d values from a stack of %d", ErrStackUnderflow, unit.Pc, unit.StackPopCount, depth)
	}
	st.Stack = st.Stack[:depth-unit.StackPopCount]
	for _, v := range unit.StackAdditions {
		st.Stack = append(st.Stack, v.Clone())
	}

	for _, change := range unit.ScratchChanges {
		st.setScratch(change.Slot, change.NewValue)
	}

	e.logger.Trace().
		Uint64(logging.FieldPc, unit.Pc).
		Int(logging.FieldStackDepth, len(st.Stack)).
		Msg("Applied opcode")

	if len(unit.StateChanges) == 0 {
		return nil
	}
	appID, ok := f.appID()
	if !ok {
		return fmt.Errorf("%w: pc %d changes state", ErrMissingAppID, unit.Pc)
	}
	app, ok := e.current.Get(appID)
	if !ok {
		return fmt.Errorf("%w %d", ErrMissingState, appID)
	}
	for i := range unit.StateChanges {
		if err := applyStateChange(app, &unit.StateChanges[i]); err != nil {
			return fmt.Errorf("pc %d: %w", unit.Pc, err)
		}
	}
	return nil
}

func applyStateChange(app *avm.AppState, op *trace.StateOperation) error {
	var target *avm.ByteArrayMap
	switch op.AppStateType {
	case trace.AppStateGlobal:
		target = app.Global
	case trace.AppStateBox:
		target = app.Box
	case trace.AppStateLocal:
		if op.Account == "" {
			return fmt.Errorf("%w: local state change without account", ErrMalformedUnit)
		}
		if op.Operation == trace.OperationWrite {
			target = app.EnsureLocal(op.Account)
			break
		}
		local, ok := app.LocalState(op.Account)
		if !ok {
			return nil
		}
		target = local
	default:
		return fmt.Errorf("%w: unknown app state type %q", ErrMalformedUnit, op.AppStateType)
	}

	switch op.Operation {
	case trace.OperationWrite:
		if op.NewValue == nil {
			return fmt.Errorf("%w: write of key %s has no value", ErrMalformedUnit, hexutil.Encode(op.Key))
		}
		target.Set(op.Key, op.NewValue.Clone())
	case trace.OperationDelete:
		target.Delete(op.Key)
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrMalformedUnit, op.Operation)
	}
	return nil
}

func (e *Engine) push(f *Frame) {
	e.stack = append(e.stack, f)
	e.logger.Debug().
		Str(logging.FieldFrameName, f.Name()).
		Int(logging.FieldFrameDepth, len(e.stack)).
		Msg("Frame pushed")
}

func (e *Engine) pop() {
	top := e.stack[len(e.stack)-1]
	e.stack[len(e.stack)-1] = nil
	e.stack = e.stack[:len(e.stack)-1]
	e.logger.Debug().
		Str(logging.FieldFrameName, top.Name()).
		Int(logging.FieldFrameDepth, len(e.stack)).
		Msg("Frame popped")
}

// Done reports whether the whole trace has been replayed.
func (e *Engine) Done() bool {
	return len(e.stack) == 0
}

func (e *Engine) Depth() int {
	return len(e.stack)
}

// Frame returns the i-th frame counting from the top of the stack.
func (e *Engine) Frame(i int) (*Frame, bool) {
	if i < 0 || i >= len(e.stack) {
		return nil, false
	}
	return e.stack[len(e.stack)-1-i], true
}

// Frames returns up to count frames starting at start, top first. A non-positive count
// returns all remaining frames.
func (e *Engine) Frames(start, count int) []*Frame {
	if start < 0 {
		start = 0
	}
	if start >= len(e.stack) {
		return nil
	}
	end := len(e.stack)
	if count > 0 && start+count < end {
		end = start + count
	}
	frames := make([]*Frame, 0, end-start)
	for i := start; i < end; i++ {
		frames = append(frames, e.stack[len(e.stack)-1-i])
	}
	return frames
}

func (e *Engine) Top() (*Frame, bool) {
	return e.Frame(0)
}

func (e *Engine) AppIDs() []uint64 {
	return e.current.AppIDs()
}

func (e *Engine) Accounts(appID uint64) []string {
	return e.current.GetOrEmpty(appID).Accounts()
}

// AppState returns the current state of the application, empty when the application is unknown.
func (e *Engine) AppState(appID uint64) *avm.AppState {
	return e.current.GetOrEmpty(appID)
}

func (e *Engine) InitialAppState(appID uint64) *avm.AppState {
	return e.initial.GetOrEmpty(appID)
}

func (e *Engine) Sources() *SourceRegistry {
	return e.sources
}
