package replay

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/replay/replaytest"
	"github.com/avmdbg/avmdbg/internal/trace"
)

type expectedFrames struct {
	groups   int
	programs int
}

func drawValue(t *rapid.T, label string) avm.Value {
	if rapid.Bool().Draw(t, label+"-isUint") {
		return replaytest.Uint(rapid.Uint64Range(0, 3).Draw(t, label+"-uint"))
	}
	return replaytest.Bytes(rapid.StringMatching(`[a-z]{0,4}`).Draw(t, label+"-bytes"))
}

func drawUnits(t *rapid.T, label string, withState bool) []trace.OpcodeTraceUnit {
	n := rapid.IntRange(1, 10).Draw(t, label+"-units")
	units := make([]trace.OpcodeTraceUnit, 0, n)
	depth := uint64(0)
	for i := range n {
		pop := rapid.Uint64Range(0, depth).Draw(t, "pop")
		push := rapid.IntRange(0, 3).Draw(t, "push")
		opts := []replaytest.UnitOption{replaytest.Pop(pop)}
		for range push {
			opts = append(opts, replaytest.Push(drawValue(t, "stack")))
		}
		if rapid.Bool().Draw(t, "scratch") {
			opts = append(opts, replaytest.Scratch(rapid.Uint64Range(0, 255).Draw(t, "slot"), drawValue(t, "scratch")))
		}
		if withState && rapid.Bool().Draw(t, "state") {
			key := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "key")
			switch rapid.IntRange(0, 3).Draw(t, "stateKind") {
			case 0:
				opts = append(opts, replaytest.GlobalWrite(key, drawValue(t, "global")))
			case 1:
				opts = append(opts, replaytest.GlobalDelete(key))
			case 2:
				opts = append(opts, replaytest.LocalWrite("ACCOUNT", key, drawValue(t, "local")))
			case 3:
				opts = append(opts, replaytest.BoxWrite(key, drawValue(t, "box")))
			}
		}
		units = append(units, replaytest.Unit(uint64(i), opts...))
		depth = depth - pop + uint64(push)
	}
	return units
}

func drawTxn(t *rapid.T, level int, exp *expectedFrames) *replaytest.TxnBuilder {
	label := fmt.Sprintf("txn%d", level)
	hash := []byte{byte(level), rapid.Byte().Draw(t, "hash")}

	if rapid.IntRange(0, 2).Draw(t, label+"-kind") == 0 {
		b := replaytest.Payment()
		if rapid.Bool().Draw(t, label+"-lsig") {
			b.LogicSig(hash, drawUnits(t, label+"-lsig", false)...)
			exp.programs++
		}
		return b
	}

	b := replaytest.AppCall(rapid.Uint64Range(1, 3).Draw(t, label+"-app"))
	if rapid.Bool().Draw(t, label+"-lsig") {
		b.LogicSig(hash, drawUnits(t, label+"-lsig", false)...)
		exp.programs++
	}

	units := drawUnits(t, label+"-app", true)
	inners := 0
	if level < 2 {
		inners = rapid.IntRange(0, 2).Draw(t, label+"-inners")
	}
	for i := range inners {
		at := rapid.IntRange(0, len(units)-1).Draw(t, "spawnAt")
		if len(units[at].SpawnedInners) == 0 {
			exp.groups++
		}
		units[at].SpawnedInners = append(units[at].SpawnedInners, uint64(i))
		b.Inner(drawTxn(t, level+1, exp))
	}

	if rapid.Bool().Draw(t, label+"-approval") {
		b.Approval(hash, units...)
	} else {
		b.ClearState(hash, units...)
	}
	exp.programs++
	return b
}

func drawResponse(t *rapid.T) (*trace.SimulateResponse, expectedFrames) {
	var exp expectedFrames
	groups := make([]trace.TxnGroupResult, rapid.IntRange(0, 3).Draw(t, "groups"))
	for i := range groups {
		txns := make([]*replaytest.TxnBuilder, rapid.IntRange(1, 3).Draw(t, "txns"))
		for j := range txns {
			txns[j] = drawTxn(t, 0, &exp)
		}
		groups[i] = replaytest.Group(txns...)
		exp.groups++
	}
	resp := replaytest.WithInitialStates(replaytest.Response(groups...),
		replaytest.AppInitialState{ID: 1}, replaytest.AppInitialState{ID: 2}, replaytest.AppInitialState{ID: 3})
	return resp, exp
}

func snapshot(e *Engine, initial bool) map[uint64]string {
	res := make(map[uint64]string)
	for _, id := range e.AppIDs() {
		st := e.AppState(id)
		if initial {
			st = e.InitialAppState(id)
		}
		res[id] = fmt.Sprint(st.Global.Entries(), st.Box.Entries(), st.Accounts())
		for _, account := range st.Accounts() {
			res[id] += fmt.Sprint(st.Local[account].Entries())
		}
	}
	return res
}

func TestReplayProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		resp, exp := drawResponse(t)
		e := NewEngine(resp, nil, logging.Nop())
		initialBefore := snapshot(e, true)

		pushes := map[FrameKind]int{FrameGroupList: 1}
		pops := 0
		for step := 0; ; step++ {
			require.Less(t, step, 100_000)

			depth := e.Depth()
			var (
				program     *programFrame
				stackBefore int
				unit        *trace.OpcodeTraceUnit
			)
			if top, ok := e.Top(); ok && top.kind == FrameProgram && top.program.index < len(top.program.units) {
				program = top.program
				stackBefore = len(program.state.Stack)
				unit = &program.units[program.index]
			}

			more, err := e.Forward()
			require.NoError(t, err)

			if program != nil {
				require.Equal(t, stackBefore-int(unit.StackPopCount)+len(unit.StackAdditions), len(program.state.Stack))
				for slot, v := range program.state.Scratch {
					require.False(t, v.IsZeroUint(), "slot %d holds explicit zero", slot)
				}
			}

			switch {
			case e.Depth() == depth+1:
				top, _ := e.Top()
				pushes[top.Kind()]++
			case e.Depth() == depth-1:
				pops++
			default:
				require.Equal(t, depth, e.Depth())
			}

			if !more {
				break
			}
		}

		require.Equal(t, 0, e.Depth())
		require.Equal(t, exp.groups, pushes[FrameTxnGroup])
		require.Equal(t, exp.programs, pushes[FrameProgram])
		require.Equal(t, pushes[FrameGroupList]+pushes[FrameTxnGroup]+pushes[FrameProgram], pops)
		require.Equal(t, initialBefore, snapshot(e, true))
	})
}

func TestScratchZeroNormalization(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		written := newProgramState()
		untouched := newProgramState()
		slot := rapid.Uint64Range(0, ScratchSlots-1).Draw(t, "slot")

		for i := range rapid.IntRange(0, 5).Draw(t, "writes") {
			written.setScratch(slot, drawValue(t, fmt.Sprintf("write%d", i)))
		}
		written.setScratch(slot, avm.NewUint(0))

		require.Equal(t, untouched.ScratchValue(slot), written.ScratchValue(slot))
		require.Equal(t, untouched.ScratchSlotsInUse(), written.ScratchSlotsInUse())
		require.Empty(t, written.Scratch)
	})
}
