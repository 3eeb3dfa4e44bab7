package dap

import (
	"fmt"
	"strconv"

	"github.com/google/go-dap"

	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/replay"
)

type refKind int

const (
	refProgramState refKind = iota
	refStack
	refScratch
	refOnChain
	refApp
	refAppGlobal
	refAppLocals
	refAppLocal
	refAppBoxes
)

type varsRef struct {
	kind    refKind
	frame   int
	appID   uint64
	account string
}

// handles hands out variablesReference numbers, one per distinct varsRef. They are invalidated on every stop.
type handles struct {
	refs []varsRef
	ids  map[varsRef]int
}

func newHandles() *handles {
	return &handles{ids: make(map[varsRef]int)}
}

func (h *handles) create(ref varsRef) int {
	if id, ok := h.ids[ref]; ok {
		return id
	}
	h.refs = append(h.refs, ref)
	id := len(h.refs)
	h.ids[ref] = id
	return id
}

func (h *handles) get(id int) (varsRef, bool) {
	if id <= 0 || id > len(h.refs) {
		return varsRef{}, false
	}
	return h.refs[id-1], true
}

func (h *handles) reset() {
	h.refs = h.refs[:0]
	clear(h.ids)
}

type sourceKey struct {
	name    string
	content replay.InlineContent
}

// sourceRefs assigns stable sourceReference numbers to inline source content for the whole session.
type sourceRefs struct {
	ids      map[sourceKey]int
	contents []replay.InlineContent
}

func newSourceRefs() *sourceRefs {
	return &sourceRefs{ids: make(map[sourceKey]int)}
}

func (r *sourceRefs) ref(name string, content replay.InlineContent) int {
	key := sourceKey{name: name, content: content}
	if id, ok := r.ids[key]; ok {
		return id
	}
	r.contents = append(r.contents, content)
	id := len(r.contents)
	r.ids[key] = id
	return id
}

func (r *sourceRefs) get(id int) (replay.InlineContent, bool) {
	if id <= 0 || id > len(r.contents) {
		return replay.InlineContent{}, false
	}
	return r.contents[id-1], true
}

func (s *session) onScopes(req *dap.ScopesRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}
	frame, err := s.frame(req.Arguments.FrameId)
	if err != nil {
		return err
	}

	scopes := make([]dap.Scope, 0, 2)
	if _, ok := frame.ProgramState(); ok {
		scopes = append(scopes, dap.Scope{
			Name:               "Program State",
			PresentationHint:   "locals",
			VariablesReference: s.handles.create(varsRef{kind: refProgramState, frame: req.Arguments.FrameId - 1}),
		})
	}
	scopes = append(scopes, dap.Scope{
		Name:               "On-chain State",
		PresentationHint:   "globals",
		VariablesReference: s.handles.create(varsRef{kind: refOnChain}),
		NamedVariables:     len(s.rt.AppIDs()),
	})

	s.send(&dap.ScopesResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body:     dap.ScopesResponseBody{Scopes: scopes},
	})
	return nil
}

func (s *session) onVariables(req *dap.VariablesRequest) error {
	if s.rt == nil {
		return ErrNotLaunched
	}
	ref, ok := s.handles.get(req.Arguments.VariablesReference)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownVariables, req.Arguments.VariablesReference)
	}

	vars, err := s.variables(ref)
	if err != nil {
		return err
	}
	vars = page(vars, req.Arguments.Start, req.Arguments.Count)

	s.send(&dap.VariablesResponse{
		Response: s.newResponse(&req.Request, true, ""),
		Body:     dap.VariablesResponseBody{Variables: vars},
	})
	return nil
}

func page(vars []dap.Variable, start, count int) []dap.Variable {
	if start >= len(vars) {
		return []dap.Variable{}
	}
	vars = vars[max(start, 0):]
	if count > 0 && count < len(vars) {
		vars = vars[:count]
	}
	return vars
}

func (s *session) variables(ref varsRef) ([]dap.Variable, error) {
	switch ref.kind {
	case refProgramState, refStack, refScratch:
		frame, ok := s.rt.Frame(ref.frame)
		if !ok {
			return nil, fmt.Errorf("%w %d", ErrUnknownFrame, ref.frame+1)
		}
		state, ok := frame.ProgramState()
		if !ok {
			return nil, fmt.Errorf("frame %q has no program state", frame.Name())
		}
		return s.programVariables(ref, state), nil
	case refOnChain:
		appIDs := s.rt.AppIDs()
		vars := make([]dap.Variable, len(appIDs))
		for i, id := range appIDs {
			vars[i] = dap.Variable{
				Name:               "app " + strconv.FormatUint(id, 10),
				Value:              "",
				VariablesReference: s.handles.create(varsRef{kind: refApp, appID: id}),
				NamedVariables:     3,
			}
		}
		return vars, nil
	case refApp:
		state := s.rt.AppState(ref.appID)
		return []dap.Variable{
			s.container("global", fmt.Sprintf("%d keys", state.Global.Len()), varsRef{kind: refAppGlobal, appID: ref.appID}),
			s.container("local", fmt.Sprintf("%d accounts", len(state.Local)), varsRef{kind: refAppLocals, appID: ref.appID}),
			s.container("box", fmt.Sprintf("%d boxes", state.Box.Len()), varsRef{kind: refAppBoxes, appID: ref.appID}),
		}, nil
	case refAppGlobal:
		return mapVariables(s.rt.AppState(ref.appID).Global), nil
	case refAppBoxes:
		return mapVariables(s.rt.AppState(ref.appID).Box), nil
	case refAppLocals:
		accounts := s.rt.Accounts(ref.appID)
		vars := make([]dap.Variable, len(accounts))
		for i, account := range accounts {
			vars[i] = s.container(account, "", varsRef{kind: refAppLocal, appID: ref.appID, account: account})
		}
		return vars, nil
	case refAppLocal:
		local, ok := s.rt.AppState(ref.appID).LocalState(ref.account)
		if !ok {
			return []dap.Variable{}, nil
		}
		return mapVariables(local), nil
	default:
		return nil, fmt.Errorf("%w kind %d", ErrUnknownVariables, ref.kind)
	}
}

func (s *session) programVariables(ref varsRef, state *replay.ProgramState) []dap.Variable {
	switch ref.kind {
	case refStack:
		vars := make([]dap.Variable, len(state.Stack))
		for i, v := range state.Stack {
			vars[i] = valueVariable(strconv.Itoa(i), v)
		}
		return vars
	case refScratch:
		slots := state.ScratchSlotsInUse()
		vars := make([]dap.Variable, len(slots))
		for i, slot := range slots {
			vars[i] = valueVariable(strconv.FormatUint(slot, 10), state.ScratchValue(slot))
		}
		return vars
	default:
		stack := s.container("stack", fmt.Sprintf("%d values", len(state.Stack)),
			varsRef{kind: refStack, frame: ref.frame})
		stack.IndexedVariables = len(state.Stack)
		scratch := s.container("scratch", fmt.Sprintf("%d slots in use", len(state.ScratchSlotsInUse())),
			varsRef{kind: refScratch, frame: ref.frame})
		return []dap.Variable{
			{Name: "pc", Value: strconv.FormatUint(state.PC, 10), Type: avm.TypeUint.String()},
			stack,
			scratch,
		}
	}
}

func (s *session) container(name, value string, ref varsRef) dap.Variable {
	return dap.Variable{
		Name:               name,
		Value:              value,
		VariablesReference: s.handles.create(ref),
	}
}

func valueVariable(name string, v avm.Value) dap.Variable {
	return dap.Variable{
		Name:  name,
		Value: v.String(),
		Type:  v.Type.String(),
	}
}

func mapVariables(m *avm.ByteArrayMap) []dap.Variable {
	vars := make([]dap.Variable, 0, m.Len())
	m.Ascend(func(key []byte, value avm.Value) bool {
		vars = append(vars, valueVariable(avm.NewBytes(key).String(), value))
		return true
	})
	return vars
}
