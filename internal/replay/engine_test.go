package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/replay/replaytest"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
)

var (
	approvalHash = []byte{0xaa, 0x01}
	innerHash    = []byte{0xaa, 0x02}
	lsigHash     = []byte{0xbb, 0x01}
)

func newEngine(t *testing.T, resp *trace.SimulateResponse, sources ...*sourcemap.ProgramSource) *Engine {
	t.Helper()
	return NewEngine(resp, NewSourceRegistry(sources), logging.Nop())
}

func forward(t *testing.T, e *Engine) bool {
	t.Helper()
	more, err := e.Forward()
	require.NoError(t, err)
	return more
}

func topName(t *testing.T, e *Engine) string {
	t.Helper()
	top, ok := e.Top()
	require.True(t, ok)
	return top.Name()
}

func forwardUntil(t *testing.T, e *Engine, cond func(top *Frame) bool) *Frame {
	t.Helper()
	for range 10000 {
		require.True(t, forward(t, e), "trace ended before the condition was met")
		top, ok := e.Top()
		require.True(t, ok)
		if cond(top) {
			return top
		}
	}
	t.Fatal("condition was never met")
	return nil
}

func TestFrameWalk(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(1050).Approval(approvalHash,
			replaytest.Unit(1, replaytest.Push(replaytest.Uint(1))),
			replaytest.Unit(2, replaytest.Pop(1)),
		),
	)))

	type step struct {
		depth int
		name  string
	}
	expected := []step{
		{2, "transaction group 0"},
		{3, "app 1050 approval"},
		{3, "app 1050 approval"},
		{3, "app 1050 approval"},
		{2, "transaction group 0"},
		{1, "transaction groups"},
	}

	require.Equal(t, 1, e.Depth())
	assert.Equal(t, "transaction groups", topName(t, e))
	for i, exp := range expected {
		require.True(t, forward(t, e), "step %d", i)
		assert.Equal(t, exp.depth, e.Depth(), "step %d", i)
		assert.Equal(t, exp.name, topName(t, e), "step %d", i)
	}

	assert.False(t, forward(t, e))
	assert.True(t, e.Done())
	assert.Equal(t, 0, e.Depth())

	// Stepping past the end is harmless.
	assert.False(t, forward(t, e))
}

func TestLogicSigBeforeApproval(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.Payment().LogicSig(lsigHash, replaytest.Unit(0)),
		replaytest.AppCall(7).
			LogicSig(lsigHash, replaytest.Unit(0)).
			ClearState(approvalHash, replaytest.Unit(0)),
	)))

	var pushed []string
	depth := e.Depth()
	for forward(t, e) {
		if e.Depth() > depth {
			pushed = append(pushed, topName(t, e))
		}
		depth = e.Depth()
	}
	assert.Equal(t, []string{"transaction group 0", "logic sig", "logic sig", "app 7 clear state"}, pushed)
}

func TestInnerTxnGroups(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(1).
			Approval(approvalHash,
				replaytest.Unit(0),
				replaytest.Unit(1, replaytest.Spawn(0)),
				replaytest.Unit(2, replaytest.Spawn(1, 2)),
			).
			Inner(replaytest.AppCall(2).Approval(innerHash, replaytest.Unit(0))).
			Inner(replaytest.Payment()).
			Inner(replaytest.AppCreate(3).Approval(innerHash, replaytest.Unit(0))),
	)))

	innerGroup := forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameTxnGroup && e.Depth() == 4 })
	assert.Equal(t, "inner transaction group 0", innerGroup.Name())

	parent, ok := e.Frame(1)
	require.True(t, ok)
	state, ok := parent.ProgramState()
	require.True(t, ok)
	assert.Equal(t, uint64(1), state.PC)

	inner := forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameProgram })
	assert.Equal(t, "app 2 approval", inner.Name())
	assert.Equal(t, 5, e.Depth())

	second := forwardUntil(t, e, func(top *Frame) bool { return top.Name() == "inner transaction group 1" })
	assert.Equal(t, "inner transaction group 1", second.Name())

	// The payment has no trace; the app creation's id comes from application-index.
	created := forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameProgram && e.Depth() == 5 })
	assert.Equal(t, "app 3 approval", created.Name())

	frames := e.Frames(0, 0)
	require.Len(t, frames, 5)
	assert.Equal(t, "transaction groups", frames[4].Name())
	assert.Equal(t, []*Frame{frames[1], frames[2]}, e.Frames(1, 2))
	assert.Empty(t, e.Frames(5, 1))

	for forward(t, e) {
	}
}

func TestStackUnderflow(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(1).Approval(approvalHash,
			replaytest.Unit(0, replaytest.Push(replaytest.Uint(1))),
			replaytest.Unit(1, replaytest.Pop(2)),
		),
	)))

	var err error
	for more := true; more && err == nil; {
		more, err = e.Forward()
	}
	require.ErrorIs(t, err, ErrStackUnderflow)
	assert.Contains(t, err.Error(), "pc 1")
}

func TestMissingAppID(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.Payment().Approval(approvalHash,
			replaytest.Unit(0, replaytest.GlobalWrite("k", replaytest.Uint(1))),
		),
	)))

	var err error
	for more := true; more && err == nil; {
		more, err = e.Forward()
	}
	require.ErrorIs(t, err, ErrMissingAppID)
}

func TestMissingStateContainer(t *testing.T) {
	t.Parallel()

	for name, change := range map[string]replaytest.UnitOption{
		"global": replaytest.GlobalWrite("k", replaytest.Uint(1)),
		"box":    replaytest.BoxWrite("k", replaytest.Bytes("v")),
		"delete": replaytest.GlobalDelete("k"),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEngine(t, replaytest.WithInitialStates(replaytest.Response(replaytest.Group(
				replaytest.AppCall(7).Approval(approvalHash, replaytest.Unit(0), replaytest.Unit(1, change)),
			)), replaytest.AppInitialState{ID: 8}))
			assert.Equal(t, []uint64{8}, e.AppIDs())

			var err error
			for more := true; more && err == nil; {
				more, err = e.Forward()
			}
			require.ErrorIs(t, err, ErrMissingState)
			assert.Contains(t, err.Error(), "7")
		})
	}
}

func TestLocalWriteCreatesAppState(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(7).Approval(approvalHash,
			replaytest.Unit(0, replaytest.LocalWrite("ALICE", "k", replaytest.Uint(1))),
			replaytest.Unit(1, replaytest.GlobalWrite("g", replaytest.Uint(2))),
		),
	)))
	assert.Equal(t, []uint64{7}, e.AppIDs())
	assert.Equal(t, []string{"ALICE"}, e.Accounts(7))

	for forward(t, e) {
	}
	assert.Equal(t, 1, e.AppState(7).Global.Len())
}

func TestEmptyTrace(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response())
	more, err := e.Forward()
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, e.Done())
}

func TestMalformedStateChange(t *testing.T) {
	t.Parallel()

	unit := replaytest.Unit(0, replaytest.GlobalWrite("k", replaytest.Uint(1)))
	unit.StateChanges[0].NewValue = nil

	e := newEngine(t, replaytest.WithInitialStates(replaytest.Response(replaytest.Group(
		replaytest.AppCall(1).Approval(approvalHash, unit),
	)), replaytest.AppInitialState{ID: 1}))

	var err error
	for more := true; more && err == nil; {
		more, err = e.Forward()
	}
	require.ErrorIs(t, err, ErrMalformedUnit)
}

func TestBackwardNotImplemented(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response())
	require.ErrorIs(t, e.Backward(), ErrNotImplemented)
	assert.Equal(t, 1, e.Depth())
	assert.False(t, forward(t, e))
}

func TestScratchZeroDeletesSlot(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(1).Approval(approvalHash,
			replaytest.Unit(0, replaytest.Scratch(3, replaytest.Uint(5)), replaytest.Scratch(4, replaytest.Bytes("x"))),
			replaytest.Unit(1, replaytest.Scratch(3, replaytest.Uint(0))),
		),
	)))

	top := forwardUntil(t, e, func(top *Frame) bool {
		st, ok := top.ProgramState()
		return ok && st.PC == 0 && len(st.Scratch) > 0
	})
	st, _ := top.ProgramState()
	assert.Equal(t, []uint64{3, 4}, st.ScratchSlotsInUse())
	assert.Equal(t, replaytest.Uint(5), st.ScratchValue(3))

	require.True(t, forward(t, e))
	assert.Equal(t, []uint64{4}, st.ScratchSlotsInUse())
	assert.Equal(t, replaytest.Uint(0), st.ScratchValue(3))
	assert.Equal(t, replaytest.Uint(0), st.ScratchValue(200))
	assert.Equal(t, replaytest.Bytes("x"), st.ScratchValue(4))
}

func TestGlobalStateWrite(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.WithInitialStates(replaytest.Response(replaytest.Group(
		replaytest.AppCall(1050).Approval(approvalHash,
			replaytest.Unit(1, replaytest.Push(replaytest.Bytes("global-int-key"))),
			replaytest.Unit(17, replaytest.Push(replaytest.Uint(0xdeadbeef))),
			replaytest.Unit(23, replaytest.Pop(2), replaytest.GlobalWrite("global-int-key", replaytest.Uint(0xdeadbeef))),
		),
	)), replaytest.AppInitialState{ID: 1050}))

	top := forwardUntil(t, e, func(top *Frame) bool {
		st, ok := top.ProgramState()
		return ok && st.PC == 23
	})
	st, _ := top.ProgramState()
	assert.Empty(t, st.Stack)

	global := e.AppState(1050).Global
	require.Equal(t, 1, global.Len())
	v, ok := global.Get([]byte("global-int-key"))
	require.True(t, ok)
	assert.Equal(t, avm.TypeUint, v.Type)
	assert.Equal(t, uint64(0xdeadbeef), v.Uint)

	assert.Equal(t, 0, e.InitialAppState(1050).Global.Len())
	assert.Equal(t, []uint64{1050}, e.AppIDs())
}

func TestBoxStateWrites(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.WithInitialStates(replaytest.Response(replaytest.Group(
		replaytest.AppCall(1050).Approval(approvalHash,
			replaytest.Unit(1, replaytest.BoxWrite("box-key-1", replaytest.Bytes("box-value-1"))),
			replaytest.Unit(2, replaytest.BoxWrite("box-key-2", replaytest.Bytes(""))),
			replaytest.Unit(3, replaytest.BoxWrite("box-key-3", replaytest.Bytes("gone"))),
			replaytest.Unit(4, replaytest.BoxDelete("box-key-3")),
		),
	)), replaytest.AppInitialState{ID: 1050}))
	for forward(t, e) {
	}

	box := e.AppState(1050).Box
	require.Equal(t, 2, box.Len())
	v, ok := box.Get([]byte("box-key-1"))
	require.True(t, ok)
	assert.Equal(t, []byte("box-value-1"), v.Bytes)
	v, ok = box.Get([]byte("box-key-2"))
	require.True(t, ok)
	assert.True(t, v.IsBytes())
	assert.Empty(t, v.Bytes)
}

func TestLocalStatePrecreated(t *testing.T) {
	t.Parallel()

	e := newEngine(t, replaytest.WithInitialStates(
		replaytest.Response(replaytest.Group(
			replaytest.AppCall(5).Approval(approvalHash,
				replaytest.Unit(0),
				replaytest.Unit(1, replaytest.LocalWrite("BOB", "counter", replaytest.Uint(2))),
				replaytest.Unit(2, replaytest.LocalDelete("ALICE", "counter")),
				replaytest.Unit(3, replaytest.LocalDelete("CAROL", "counter")),
			),
		)),
		replaytest.AppInitialState{
			ID:     5,
			Global: map[string]avm.Value{"g": replaytest.Uint(1)},
			Local:  map[string]map[string]avm.Value{"ALICE": {"counter": replaytest.Uint(9)}},
		},
		replaytest.AppInitialState{ID: 6},
	))

	// BOB's local state exists before the write is replayed.
	assert.Equal(t, []string{"ALICE", "BOB"}, e.Accounts(5))
	assert.Equal(t, 0, e.AppState(5).Local["BOB"].Len())
	assert.Equal(t, []uint64{5, 6}, e.AppIDs())

	for forward(t, e) {
	}

	bob, ok := e.AppState(5).LocalState("BOB")
	require.True(t, ok)
	v, ok := bob.Get([]byte("counter"))
	require.True(t, ok)
	assert.Equal(t, uint64(2), v.Uint)
	assert.Equal(t, 0, e.AppState(5).Local["ALICE"].Len())
	assert.Equal(t, []string{"ALICE", "BOB"}, e.Accounts(5))

	// The initial snapshot is untouched.
	alice, ok := e.InitialAppState(5).LocalState("ALICE")
	require.True(t, ok)
	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 0, e.InitialAppState(5).Local["BOB"].Len())

	assert.Equal(t, 0, e.AppState(404).Global.Len())
	assert.Empty(t, e.Accounts(404))
	assert.NotContains(t, e.AppIDs(), uint64(404))
}

func TestStackScenario(t *testing.T) {
	t.Parallel()

	src := replaytest.StackScenarioSource(approvalHash, "/contracts/stack.teal")
	e := newEngine(t, replaytest.Response(replaytest.Group(
		replaytest.AppCall(1050).Approval(approvalHash, replaytest.StackScenario()...),
	)), src)

	for _, tc := range []struct {
		line  int
		pc    uint64
		stack []avm.Value
	}{
		{3, 6, []avm.Value{replaytest.Uint(1005)}},
		{12, 18, []avm.Value{replaytest.Uint(10)}},
		{22, 34, []avm.Value{
			replaytest.Uint(10), replaytest.Uint(0), replaytest.Uint(0), replaytest.Uint(0),
			replaytest.Uint(0), replaytest.Uint(0), replaytest.Uint(0),
		}},
	} {
		top := forwardUntil(t, e, func(top *Frame) bool {
			return top.Kind() == FrameProgram && top.Location().Line == tc.line
		})
		st, _ := top.ProgramState()
		assert.Equal(t, tc.pc, st.PC, "line %d", tc.line)
		assert.Equal(t, tc.stack, st.Stack, "line %d", tc.line)
		assert.Equal(t, "/contracts/stack.teal", top.Source().Path)
		assert.Equal(t, "stack.teal", top.Source().Name)
	}
}

func TestProgramSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := filepath.Join(dir, "approval.teal")
	require.NoError(t, os.WriteFile(existing, []byte("#pragma version 8\n"), 0o600))

	withFile := replaytest.ProgramSource(approvalHash, existing, replaytest.Lines([2]int{0, 1}))
	inline := replaytest.ProgramSource(innerHash, filepath.Join(dir, "missing.teal"), replaytest.Lines([2]int{0, 2}))
	inline.SourceMap.SourcesContent = []string{"int 1\nint 2\n"}

	registry := NewSourceRegistry([]*sourcemap.ProgramSource{withFile, inline})
	var discovered []string
	registry.OnDiscovered = func(src *sourcemap.ProgramSource) {
		discovered = append(discovered, src.SourceName())
	}

	e := NewEngine(replaytest.Response(
		replaytest.Group(
			replaytest.AppCall(1).Approval(approvalHash, replaytest.Unit(0)),
			replaytest.AppCall(1).Approval(approvalHash, replaytest.Unit(0)),
		),
		replaytest.Group(
			replaytest.AppCall(2).Approval(innerHash, replaytest.Unit(0)),
			replaytest.Payment().LogicSig(lsigHash, replaytest.Unit(0)),
		),
	), registry, logging.Nop())
	assert.Equal(t, 3, registry.ProgramCount())
	assert.Empty(t, discovered)

	top := forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameProgram })
	assert.Equal(t, &FrameSource{Name: "approval.teal", Path: existing}, top.Source())
	assert.Equal(t, SourceLocation{Line: 1}, top.Location())
	assert.Equal(t, []string{"approval.teal"}, discovered)

	top = forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameProgram && top.Name() == "app 2 approval" })
	require.NotNil(t, top.Source().Content)
	assert.Equal(t, MimeText, top.Source().Content.MimeType)
	assert.Equal(t, "int 1\nint 2\n", top.Source().Content.Text)
	assert.Equal(t, SourceLocation{Line: 2}, top.Location())
	assert.Equal(t, []string{"approval.teal", "missing.teal"}, discovered)

	top = forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameProgram && top.Name() == "logic sig" })
	assert.Equal(t, &FrameSource{Name: "unknown program"}, top.Source())
	assert.Equal(t, SourceLocation{}, top.Location())
	_, ok := top.AppID()
	assert.False(t, ok)

	assert.Len(t, registry.Sources(filepath.Join(dir, ".", "approval.teal")), 1)
	assert.Len(t, registry.Known(existing), 1)
}

func TestGroupView(t *testing.T) {
	t.Parallel()

	data := []byte(`{"txn-groups": [{"txn-results": [
		{"txn-result": {"txn": {"txn": {"type": "appl", "apid": 18446744073709551615}}, "pool-error": ""}},
		{"txn-result": {"txn": {"txn": {"type": "pay", "amt": 1000}}}}
	]}]}`)
	resp, err := trace.DecodeSimulateResponse(data)
	require.NoError(t, err)

	e := newEngine(t, resp)
	group := forwardUntil(t, e, func(top *Frame) bool { return top.Kind() == FrameTxnGroup })

	src := group.Source()
	require.NotNil(t, src)
	require.NotNil(t, src.Content)
	assert.Equal(t, "transaction group 0.json", src.Name)
	assert.Equal(t, MimeJSON, src.Content.MimeType)
	assert.Equal(t, `[
  {
    "pool-error": "",
    "txn": {
      "txn": {
        "apid": 18446744073709551615,
        "type": "appl"
      }
    }
  },
  {
    "txn": {
      "txn": {
        "amt": 1000,
        "type": "pay"
      }
    }
  }
]`, src.Content.Text)
	assert.Equal(t, SourceLocation{Line: 2, EndLine: 10}, group.Location())

	require.True(t, forward(t, e))
	assert.Equal(t, SourceLocation{Line: 11, EndLine: 18}, group.Location())
}

func TestEmptyGroupView(t *testing.T) {
	t.Parallel()

	view := buildGroupView(nil)
	assert.Equal(t, "[]", view.text)
	assert.Empty(t, view.spans)

	view = buildGroupView([]txnEntry{{}})
	assert.Equal(t, "[\n  null\n]", view.text)
	assert.Equal(t, []lineSpan{{start: 2, end: 2}}, view.spans)
}
